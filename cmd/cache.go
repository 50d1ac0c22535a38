package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the data source cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired source cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("cache prune requires a store (store.driver is none)")
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpiredSources(ctx)
		if err != nil {
			return eris.Wrap(err, "prune cache")
		}
		zap.L().Info("cache pruned", zap.Int("deleted", n))
		cmd.Printf("deleted %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
