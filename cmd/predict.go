package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	predictLat float64
	predictLon float64
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the HMPI at a coordinate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "predict")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Predictor.PredictLocation(ctx, predictLat, predictLon)
		if err != nil {
			return eris.Wrap(err, "predict")
		}

		zap.L().Info("prediction complete",
			zap.Float64("latitude", predictLat),
			zap.Float64("longitude", predictLon),
			zap.Float64("hmpi", p.HMPI),
			zap.Int("fallbacks", len(p.Fallbacks)),
		)
		return writeJSON(cmd.OutOrStdout(), p)
	},
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show the environmental features assembled for a coordinate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "predict")
		if err != nil {
			return err
		}
		defer env.Close()

		fs, err := env.Predictor.Features(ctx, predictLat, predictLon)
		if err != nil {
			return eris.Wrap(err, "features")
		}
		return writeJSON(cmd.OutOrStdout(), fs)
	},
}

func init() {
	for _, c := range []*cobra.Command{predictCmd, featuresCmd} {
		c.Flags().Float64Var(&predictLat, "lat", 0, "latitude in decimal degrees (required)")
		c.Flags().Float64Var(&predictLon, "lon", 0, "longitude in decimal degrees (required)")
		_ = c.MarkFlagRequired("lat")
		_ = c.MarkFlagRequired("lon")
		rootCmd.AddCommand(c)
	}
}
