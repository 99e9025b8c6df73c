package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"basis-alerts/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNG       string
	exportCSV       string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export alert history to CSV and/or a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNG,
			CSVPath:   exportCSV,
			MaxPoints: exportMaxPoints,
		}

		var err error
		if opts.From, err = parseTimeFlag("from", exportFrom); err != nil {
			return err
		}
		if opts.To, err = parseTimeFlag("to", exportTo); err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Window start, RFC3339 (default derived from refresh interval)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Window end, RFC3339 (default now)")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "Write a basis chart to this PNG file")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "Write alert rows to this CSV file")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Downsample chart to at most this many points (0 = config default)")
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value %q: %w", name, value, err)
	}
	return &t, nil
}
