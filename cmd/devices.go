package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/sitemon/pkg/linuxav/v4l2"
)

type deviceReport struct {
	Path    string         `json:"path"`
	Name    string         `json:"name"`
	ID      string         `json:"id"`
	Formats []formatReport `json:"formats"`
}

type formatReport struct {
	FourCC      string   `json:"fourcc"`
	Description string   `json:"description"`
	Emulated    bool     `json:"emulated,omitempty"`
	Sizes       []string `json:"sizes,omitempty"`
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var asJSON bool

	c := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 capture devices and their formats",
		Long: `Enumerates video capture nodes, their pixel formats and frame sizes. ` +
			`The monitor needs GREY for sensing and MJPG for recording.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			devices, err := v4l2.FindDevices()
			if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}

			reports := make([]deviceReport, 0, len(devices))
			for _, d := range devices {
				reports = append(reports, describeDevice(d))
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			printDevices(reports)
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return c
}

func describeDevice(d v4l2.DeviceInfo) deviceReport {
	report := deviceReport{Path: d.DevicePath, Name: d.DeviceName, ID: d.DeviceID}
	formats, err := v4l2.GetFormats(d.DevicePath)
	if err != nil {
		return report
	}
	for _, f := range formats {
		fr := formatReport{
			FourCC:      v4l2.FormatFourCC(f.PixelFormat),
			Description: f.FormatName,
			Emulated:    f.Emulated,
		}
		if sizes, err := v4l2.GetResolutions(d.DevicePath, f.PixelFormat); err == nil {
			for _, s := range sizes {
				fr.Sizes = append(fr.Sizes, fmt.Sprintf("%dx%d", s.Width, s.Height))
			}
		}
		report.Formats = append(report.Formats, fr)
	}
	return report
}

func printDevices(reports []deviceReport) {
	if len(reports) == 0 {
		fmt.Println("No capture devices found")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Path, r.Name, r.ID)
		for _, f := range r.Formats {
			fmt.Fprintf(w, "\t%s\t%s\t%d sizes\n", f.FourCC, f.Description, len(f.Sizes))
		}
	}
	_ = w.Flush()
}
