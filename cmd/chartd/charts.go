package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"signalchart/config"
	sqlitestore "signalchart/internal/store/sqlite"
)

func newChartsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "charts",
		Short: "List the charts persisted in the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			charts, err := store.ListCharts(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHART\tSYMBOL\tBARS\tUPDATED")
			for _, c := range charts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Symbol, c.Bars, c.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
