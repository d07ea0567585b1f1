package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"signalchart/config"
	"signalchart/internal/model"
	redisstore "signalchart/internal/store/redis"
)

func newPublishCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a frame JSON file to running gateways over Redis",
		Long: `Publish reads a frame ({"chart","quote","buy","sell"}) from --file, or stdin
when --file is "-", and publishes it on the chart's Pub/Sub channel.
Example: chartd publish --chart btc --mode sniper --file frame.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			chartID, _ := cmd.Flags().GetString("chart")
			mode, _ := cmd.Flags().GetString("mode")
			if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
				cfg.RedisAddr = addr
			}

			f, err := readFrame(cmd.InOrStdin(), path, chartID, mode)
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return fmt.Errorf("publish: REDIS_ADDR is not set")
			}
			cache, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			if err != nil {
				return err
			}
			defer cache.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := cache.Publish(ctx, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (%d bars) to %s\n", f.Chart, f.Quote.Len(), model.ChannelKey(f.Chart))
			return nil
		},
	}
	cmd.Flags().String("file", "-", "Frame JSON file, - for stdin")
	cmd.Flags().String("chart", "", "Chart id (overrides the file)")
	cmd.Flags().String("mode", "", "Overlay mode for a new chart: signals, line, band")
	cmd.Flags().String("redis", "", "Redis address (overrides REDIS_ADDR)")
	return cmd
}

// readFrame decodes a frame from path, or from stdin when path is "-", and
// applies the chart and mode overrides.
func readFrame(stdin io.Reader, path, chartID, mode string) (model.Frame, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return model.Frame{}, fmt.Errorf("read frame: %w", err)
	}

	var f model.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return model.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if chartID != "" {
		f.Chart = chartID
	}
	if f.Chart == "" {
		return model.Frame{}, fmt.Errorf("decode frame: chart id is required (set --chart)")
	}
	if mode != "" {
		f.Mode = mode
	}
	if f.Quote != nil {
		if err := f.Quote.Validate(); err != nil {
			return model.Frame{}, err
		}
	}
	return f, nil
}
