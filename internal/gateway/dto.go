package gateway

import "signalchart/internal/model"

// ── WS protocol ──

// SubscribeMsg is the client → server SUBSCRIBE request for one chart.
type SubscribeMsg struct {
	Type  string `json:"type"` // "SUBSCRIBE"
	ReqID string `json:"reqId"`
	Chart string `json:"chart"`
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type  string `json:"type"` // "UNSUBSCRIBE"
	ReqID string `json:"reqId"`
	Chart string `json:"chart"`
}

// SubscribedResponse acknowledges a SUBSCRIBE. Seq is the chart channel
// seq the replay that follows was taken at.
type SubscribedResponse struct {
	Type  string `json:"type"` // "SUBSCRIBED"
	ReqID string `json:"reqId"`
	Chart string `json:"chart"`
	Seq   int64  `json:"seq"`
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// MetricsMessage is the payload broadcast on MetricsChannel.
type MetricsMessage struct {
	Type    string        `json:"type"` // "METRICS"
	Metrics SystemMetrics `json:"metrics"`
}

// ── REST ──

// FrameAccepted is the response to POST /api/frames.
type FrameAccepted struct {
	Accepted int      `json:"accepted"`
	Charts   []string `json:"charts"`
}

// ChartsResponse is the response to GET /api/charts.
type ChartsResponse struct {
	Charts     []model.ChartInfo `json:"charts"`
	Containers []string          `json:"containers"`
}
