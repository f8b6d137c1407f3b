package events

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/messaging"
)

// SyncHandler decodes sync topic envelopes and dispatches them through r.
// An empty message, as delivered while a consumer shuts down, is
// acknowledged without dispatching.
func SyncHandler(r *Router, log *zap.Logger) messaging.Handler {
	log = log.With(zap.String("component", "sync_handler"))
	return func(ctx context.Context, value []byte) bool {
		if len(bytes.TrimSpace(value)) == 0 {
			log.Debug("empty sync message acknowledged")
			return true
		}
		msg, err := messaging.Decode(value)
		if err != nil {
			log.Warn("dropping undecodable sync message", zap.Error(err))
			return false
		}
		return r.Dispatch(ctx, msg.EventType, msg.Payload)
	}
}
