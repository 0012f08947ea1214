package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/art-injener/orbitviz-go/internal/orbit"
)

// parse <file>: разбор TLE файла с выводом элементов в консоль.
func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a TLE file and print the orbital elements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "reading %s", args[0])
			}

			elements, skipped := orbit.Parse(string(data))

			for _, recErr := range skipped {
				fmt.Fprintf(os.Stderr, "record %d", recErr.Record)
				if recErr.Name != "" {
					fmt.Fprintf(os.Stderr, " (%s)", recErr.Name)
				}
				fmt.Fprintf(os.Stderr, ": %v\n", recErr.Err)
			}

			if len(elements) == 0 {
				return errors.Errorf("no valid TLE records in %s (%d skipped)", args[0], len(skipped))
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NORAD\tNAME\tEPOCH\tINCL°\tECC\tPERIOD MIN\tAPOGEE KM\tPERIGEE KM")
			for _, el := range elements {
				fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.7f\t%.2f\t%.1f\t%.1f\n",
					el.NoradID,
					el.Name,
					el.Epoch.Format("2006-01-02 15:04:05"),
					el.InclinationDeg,
					el.Eccentricity,
					el.OrbitalPeriod(),
					el.Apogee(),
					el.Perigee(),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Printf("\n%d parsed, %d skipped\n", len(elements), len(skipped))
			return nil
		},
	}
}
