package chart

import "signalchart/internal/model"

// transparent hides a line while keeping its markers visible.
const transparent = "rgba(255, 255, 255, 0)"

// MarkerStyle is how a signal point is annotated.
type MarkerStyle struct {
	Position model.MarkerPosition
	Color    string
	Shape    model.MarkerShape
}

// SignalStyle describes one auxiliary series: the line that carries the
// points and, when Marker is set, the marker drawn at every point.
type SignalStyle struct {
	Line   LineOptions
	Marker *MarkerStyle
}

// Overlay styles the two auxiliary series of a chart. Band and line
// overlays reuse the buy/sell slots for their upper and lower lines.
type Overlay struct {
	Name string
	Buy  SignalStyle
	Sell SignalStyle
}

var (
	// BuyMarker is a green up-arrow below the bar.
	BuyMarker = MarkerStyle{Position: model.PositionBelowBar, Color: "#008000", Shape: model.ShapeArrowUp}
	// SellMarker is a red down-arrow above the bar.
	SellMarker = MarkerStyle{Position: model.PositionAboveBar, Color: "#FF0000", Shape: model.ShapeArrowDown}
)

func hiddenLine(name string) LineOptions {
	return LineOptions{Name: name, Color: transparent}
}

// SignalOverlays draws buy and sell arrows on invisible lines.
func SignalOverlays() Overlay {
	buy, sell := BuyMarker, SellMarker
	return Overlay{
		Name: "signals",
		Buy:  SignalStyle{Line: hiddenLine("buy"), Marker: &buy},
		Sell: SignalStyle{Line: hiddenLine("sell"), Marker: &sell},
	}
}

// BandOverlays draws an upper and a lower line without markers,
// e.g. a rolling high and a rolling low.
func BandOverlays() Overlay {
	return Overlay{
		Name: "band",
		Buy:  SignalStyle{Line: LineOptions{Name: "upper", Color: "#2962FF", LineWidth: 1}},
		Sell: SignalStyle{Line: LineOptions{Name: "lower", Color: "#E91E63", LineWidth: 1}},
	}
}

// LineOverlay draws a single visible line, e.g. a moving average.
// The sell slot stays empty.
func LineOverlay() Overlay {
	return Overlay{
		Name: "line",
		Buy:  SignalStyle{Line: LineOptions{Name: "line", Color: "#FF6D00", LineWidth: 2, LastValueVisible: true}},
		Sell: SignalStyle{Line: hiddenLine("unused")},
	}
}

// OverlayByName resolves a preset name. Unknown names fall back to signals.
func OverlayByName(name string) Overlay {
	switch name {
	case "band", "extremum":
		return BandOverlays()
	case "line", "sma":
		return LineOverlay()
	default:
		return SignalOverlays()
	}
}
