package chart

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CrosshairNormal is the lightweight-charts CrosshairMode.Normal value.
const CrosshairNormal = 0

// Options is the chart layout, serialized in the chart library's shape.
type Options struct {
	Height    int              `yaml:"height" json:"height"`
	Width     int              `yaml:"width" json:"width"` // 0 = container width
	AutoSize  bool             `yaml:"autosize" json:"autosize"`
	Layout    LayoutOptions    `yaml:"layout" json:"layout"`
	Grid      GridOptions      `yaml:"grid" json:"grid"`
	Crosshair CrosshairOptions `yaml:"crosshair" json:"crosshair"`
	TimeScale TimeScaleOptions `yaml:"time_scale" json:"timeScale"`
}

type LayoutOptions struct {
	BackgroundColor string `yaml:"background_color" json:"backgroundColor"`
	TextColor       string `yaml:"text_color" json:"textColor"`
}

type GridLineOptions struct {
	Color string `yaml:"color" json:"color"`
}

type GridOptions struct {
	VertLines GridLineOptions `yaml:"vert_lines" json:"vertLines"`
	HorzLines GridLineOptions `yaml:"horz_lines" json:"horzLines"`
}

type CrosshairOptions struct {
	Mode int `yaml:"mode" json:"mode"`
}

type TimeScaleOptions struct {
	TimeVisible    bool `yaml:"time_visible" json:"timeVisible"`
	SecondsVisible bool `yaml:"seconds_visible" json:"secondsVisible"`
}

// DefaultOptions returns the layout used when no options file is given.
func DefaultOptions() Options {
	return Options{
		Height:   500,
		AutoSize: true,
		Layout: LayoutOptions{
			BackgroundColor: "#ffffff",
			TextColor:       "rgba(33, 56, 77, 1)",
		},
		Grid: GridOptions{
			VertLines: GridLineOptions{Color: "rgba(197, 203, 206, 0.7)"},
			HorzLines: GridLineOptions{Color: "rgba(197, 203, 206, 0.7)"},
		},
		Crosshair: CrosshairOptions{Mode: CrosshairNormal},
		TimeScale: TimeScaleOptions{TimeVisible: true, SecondsVisible: false},
	}
}

// LoadOptions reads layout overrides from a YAML file on top of the
// defaults. An empty path or a missing file yields the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("read chart options: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return DefaultOptions(), fmt.Errorf("parse chart options: %w", err)
	}
	return opts, nil
}

// withWidth fills in the container width when the layout leaves it open.
func (o Options) withWidth(c Container) Options {
	if o.Width == 0 {
		o.Width = c.Width()
	}
	return o
}
