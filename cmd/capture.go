package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/sitemon/internal/evidence"
)

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var output string
	var frames int

	c := &cobra.Command{
		Use:   "capture",
		Short: "Record one burst of JPEG frames",
		Long:  `Runs a single MJPEG recording burst and writes the frames the way the monitor does after motion.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			_, settings, err := loadSettings(c)
			if err != nil {
				return err
			}
			if output == "" {
				output = settings.EvidenceDir
			}
			if !c.Flags().Changed("frames") {
				frames = settings.EvidenceFrames
			}
			if frames <= 0 {
				return fmt.Errorf("frames must be positive, got %d", frames)
			}

			store := evidence.NewStore(output, 0, nil)
			if err := store.Ensure(); err != nil {
				return err
			}

			engine, err := newEngine(settings)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			paths, err := engine.CaptureFrames(store.Dir(), frames)
			for _, p := range paths {
				fmt.Println(p)
			}
			return err
		},
	}
	addConfigFlag(c)
	c.Flags().String("device", "", "Override camera.device")
	c.Flags().StringVar(&output, "output", "", "Output directory (default evidence.dir)")
	c.Flags().IntVarP(&frames, "frames", "n", 0, "Frames to record (default evidence.frames)")
	return c
}
