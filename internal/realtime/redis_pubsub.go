package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ezmeets/backend/pkg/redis"
)

// channelPrefix namespaces presence channels in Redis; the meeting ID
// follows the prefix.
const channelPrefix = "meeting:"

// Broadcaster publishes presence events through Redis so every server
// instance's hub sees them, and bridges the subscription back into the
// local hub. With no Redis client it degrades to local-only fan-out.
type Broadcaster struct {
	hub    *Hub
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBroadcaster creates a presence broadcaster. rdb may be nil.
func NewBroadcaster(hub *Hub, rdb *redis.Client, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, rdb: rdb, logger: logger}
}

// BroadcastPresence publishes one presence event for the meeting.
func (b *Broadcaster) BroadcastPresence(meetingID uuid.UUID, payload interface{}) {
	message, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("marshal presence event", zap.Error(err))
		return
	}
	if b.rdb == nil {
		b.hub.broadcast(meetingID, message)
		return
	}
	if err := b.rdb.Publish(context.Background(), channelPrefix+meetingID.String(), message).Err(); err != nil {
		b.logger.Warn("publish presence event, falling back to local fan-out", zap.Error(err))
		b.hub.broadcast(meetingID, message)
	}
}

// Listen subscribes to all meeting presence channels and forwards messages
// into the local hub. Blocks until ctx is cancelled.
func (b *Broadcaster) Listen(ctx context.Context) {
	if b.rdb == nil {
		<-ctx.Done()
		return
	}
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			id, err := uuid.Parse(strings.TrimPrefix(msg.Channel, channelPrefix))
			if err != nil {
				b.logger.Warn("presence channel with bad meeting id", zap.String("channel", msg.Channel))
				continue
			}
			b.hub.broadcast(id, []byte(msg.Payload))
		}
	}
}
