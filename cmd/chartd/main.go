package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"signalchart/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "chartd",
		Short: "chartd - candlestick and signal chart gateway",
		Long: `chartd renders quotes and buy/sell indicator signals as candlestick,
line and marker series and streams them to browser charts over WebSocket.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newPublishCmd(cfg))
	rootCmd.AddCommand(newChartsCmd(cfg))
	rootCmd.AddCommand(newDemoCmd(cfg))

	return rootCmd
}
