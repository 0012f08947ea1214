package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/art-injener/orbitviz-go/internal/orbit"
)

// propagate <file>: выборка траектории спутника из TLE файла.
// По умолчанию берётся первый спутник файла, CSV на stdout.
func propagateCmd() *cobra.Command {
	var (
		days    float64
		stepSec int
		name    string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "propagate <file>",
		Short: "Sample an ECI trajectory for a satellite from a TLE file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrapf(err, "reading %s", args[0])
			}

			elements, skipped := orbit.Parse(string(data))
			if len(elements) == 0 {
				return errors.Errorf("no valid TLE records in %s (%d skipped)", args[0], len(skipped))
			}

			el, err := selectSatellite(elements, name)
			if err != nil {
				return err
			}

			prop, err := orbit.NewPropagatorWithConfig(el, cfg.OrbitConfig())
			if err != nil {
				return err
			}

			start := el.Epoch
			end := start.Add(time.Duration(days * 24 * float64(time.Hour)))
			step := time.Duration(stepSec) * time.Second

			states, sampleErrs, err := prop.PropagateRange(start, end, step)
			if err != nil {
				return err
			}

			for _, sampleErr := range sampleErrs {
				fmt.Fprintf(os.Stderr, "sample at %s failed: %v\n",
					sampleErr.Time.Format(time.RFC3339), sampleErr.Err)
			}

			if asJSON {
				return writeTrackJSON(el, states)
			}
			return writeTrackCSV(el, states)
		},
	}

	cmd.Flags().Float64Var(&days, "days", 1, "trajectory span in days from the element epoch")
	cmd.Flags().IntVar(&stepSec, "step", 60, "sampling step in seconds")
	cmd.Flags().StringVar(&name, "name", "", "satellite name (substring match, default: first in file)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of CSV")

	return cmd
}

func selectSatellite(elements []*orbit.OrbitalElements, name string) (*orbit.OrbitalElements, error) {
	if name == "" {
		return elements[0], nil
	}

	lower := strings.ToLower(name)
	for _, el := range elements {
		if strings.Contains(strings.ToLower(el.Name), lower) {
			return el, nil
		}
	}
	return nil, errors.Errorf("no satellite matching %q in file", name)
}

func writeTrackCSV(el *orbit.OrbitalElements, states []*orbit.PropagatedState) error {
	fmt.Println("time,elapsed_s,true_anomaly_deg,radius_km,x_km,y_km,z_km")
	for _, state := range states {
		t := el.Epoch.Add(time.Duration(state.ElapsedSeconds * float64(time.Second)))
		fmt.Printf("%s,%.1f,%.4f,%.3f,%.3f,%.3f,%.3f\n",
			t.Format(time.RFC3339),
			state.ElapsedSeconds,
			state.TrueAnomalyDeg,
			state.RadiusKm,
			state.Position.X,
			state.Position.Y,
			state.Position.Z,
		)
	}
	return nil
}

type trackPoint struct {
	Time           string     `json:"time"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	TrueAnomalyDeg float64    `json:"true_anomaly_deg"`
	RadiusKm       float64    `json:"radius_km"`
	PositionECIKm  [3]float64 `json:"position_eci_km"`
}

type trackOutput struct {
	NoradID int          `json:"norad_id"`
	Name    string       `json:"name,omitempty"`
	Points  []trackPoint `json:"points"`
}

func writeTrackJSON(el *orbit.OrbitalElements, states []*orbit.PropagatedState) error {
	out := trackOutput{
		NoradID: el.NoradID,
		Name:    el.Name,
		Points:  make([]trackPoint, 0, len(states)),
	}
	for _, state := range states {
		t := el.Epoch.Add(time.Duration(state.ElapsedSeconds * float64(time.Second)))
		out.Points = append(out.Points, trackPoint{
			Time:           t.Format(time.RFC3339),
			ElapsedSeconds: state.ElapsedSeconds,
			TrueAnomalyDeg: state.TrueAnomalyDeg,
			RadiusKm:       state.RadiusKm,
			PositionECIKm:  [3]float64{state.Position.X, state.Position.Y, state.Position.Z},
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
