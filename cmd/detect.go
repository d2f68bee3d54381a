package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CreateDetectCmd creates the detect command.
func CreateDetectCmd() *cobra.Command {
	var threshold int
	var cycles int

	c := &cobra.Command{
		Use:   "detect",
		Short: "Run sensing cycles and print the motion score",
		Long: `Opens the camera with the configured settings, runs sensing cycles and prints each ` +
			`normalized difference next to the threshold. Use it to pick motion.threshold for a site.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			_, settings, err := loadSettings(c)
			if err != nil {
				return err
			}
			if c.Flags().Changed("threshold") {
				if threshold < 0 {
					return fmt.Errorf("threshold must not be negative")
				}
				settings.Threshold = uint64(threshold)
			}

			engine, err := newEngine(settings)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			for i := range max(cycles, 1) {
				score, err := engine.Sense()
				if err != nil {
					return err
				}
				fmt.Printf("cycle %d: score %d threshold %d motion %t\n", i+1, score, settings.Threshold, score > settings.Threshold)
			}
			return nil
		},
	}
	addConfigFlag(c)
	c.Flags().String("device", "", "Override camera.device")
	c.Flags().IntVar(&threshold, "threshold", 0, "Override motion.threshold")
	c.Flags().IntVarP(&cycles, "count", "n", 1, "Number of sensing cycles")
	return c
}
