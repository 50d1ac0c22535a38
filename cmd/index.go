package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hmpi-cli/internal/hmpi"
	"github.com/sells-group/hmpi-cli/internal/model"
)

var indexCmd = &cobra.Command{
	Use:   "index METAL=mg/L...",
	Short: "Compute the HMPI from measured metal concentrations",
	Long:  "Computes the Heavy Metal Pollution Index from concentrations in mg/L, e.g. `hmpi index Pb_mgL=0.02 Cd=0.001`.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conc, err := parseConcentrations(args)
		if err != nil {
			return err
		}
		v, err := hmpi.Compute(conc)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]float64{"hmpi": model.RoundHMPI(v)})
	},
}

// parseConcentrations turns METAL=value arguments into a map.
func parseConcentrations(args []string) (map[string]float64, error) {
	out := make(map[string]float64, len(args))
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, eris.Errorf("index: expected METAL=value, got %q", arg)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "index: parse %s", key)
		}
		key = strings.TrimSpace(key)
		if _, dup := out[key]; dup {
			return nil, eris.Errorf("index: %s given twice", key)
		}
		out[key] = f
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
