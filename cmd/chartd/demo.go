package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signalchart/config"
	"signalchart/internal/model"
	"signalchart/internal/sim"
	redisstore "signalchart/internal/store/redis"
)

type demoOptions struct {
	charts   []string
	interval time.Duration
	signals  float64
	bars     int
}

func addDemoFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", time.Second, "Simulated bar interval")
	cmd.Flags().Float64("signals", 0.1, "Probability of a buy or sell signal on each simulated bar")
	cmd.Flags().Int("bars", 200, "Bars kept in each simulated frame")
}

func demoFlags(cmd *cobra.Command) (demoOptions, error) {
	var o demoOptions
	if list, _ := cmd.Flags().GetString("demo"); list != "" {
		for _, id := range strings.Split(list, ",") {
			if id = strings.TrimSpace(id); id != "" {
				o.charts = append(o.charts, id)
			}
		}
	}
	o.interval, _ = cmd.Flags().GetDuration("interval")
	o.signals, _ = cmd.Flags().GetFloat64("signals")
	o.bars, _ = cmd.Flags().GetInt("bars")

	if o.interval <= 0 {
		return o, fmt.Errorf("demo: interval must be positive")
	}
	if o.signals < 0 || o.signals > 1 {
		return o, fmt.Errorf("demo: signals must be within [0, 1]")
	}
	return o, nil
}

func (o demoOptions) walkers() []*sim.Walker {
	out := make([]*sim.Walker, 0, len(o.charts))
	for i, id := range o.charts {
		w := sim.NewWalker(id, 100*float64(i+1), o.bars, time.Now().UnixNano()+int64(i))
		w.SignalRate = o.signals
		out = append(out, w)
	}
	return out
}

func newDemoCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Publish simulated frames over Redis until interrupted",
		Long: `Demo random-walks one instrument per chart id and publishes a frame for
each on every tick, for driving gateways without a real producer.
Example: chartd demo --demo btc,eth --interval 500ms --signals 0.2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			demo, err := demoFlags(cmd)
			if err != nil {
				return err
			}
			if len(demo.charts) == 0 {
				demo.charts = []string{"demo"}
			}
			if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
				cfg.RedisAddr = addr
			}
			cache, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			if err != nil {
				return err
			}
			defer cache.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Printf("[demo] publishing %v every %s to %s", demo.charts, demo.interval, cfg.RedisAddr)
			sim.Run(ctx, demo.walkers(), demo.interval, func(f model.Frame) error {
				return cache.Publish(ctx, f)
			})
			log.Println("[demo] stopped")
			return nil
		},
	}
	cmd.Flags().String("demo", "", "Comma-separated chart ids (default \"demo\")")
	cmd.Flags().String("redis", "", "Redis address (overrides REDIS_ADDR)")
	addDemoFlags(cmd)
	return cmd
}
