package gateway

import (
	"context"
	"log"

	"signalchart/internal/model"
)

// PubSubRouter feeds frames from an external subscriber into the pump.
type PubSubRouter struct {
	sub  model.FrameSubscriber
	pump *FramePump
}

// NewPubSubRouter creates a router from sub to pump.
func NewPubSubRouter(sub model.FrameSubscriber, pump *FramePump) *PubSubRouter {
	return &PubSubRouter{sub: sub, pump: pump}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (r *PubSubRouter) Run(ctx context.Context) error {
	log.Println("[gateway] listening for published frames")
	return r.sub.SubscribeFrames(ctx, func(f model.Frame) {
		if err := r.pump.Submit(f, "redis"); err != nil {
			log.Printf("[gateway] WARNING: frame for %s dropped: %v", f.Chart, err)
		}
	})
}
