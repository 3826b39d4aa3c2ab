// Package bridge mirrors per-execution events onto Redis pub/sub channels
// so external fanout processes can relay them to users.
package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowscript/flowscript/common/events"
)

const channelPrefix = "workflow:events:"

// Logger is the narrow logging interface the bridge depends on.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Publisher republishes an execution's events as JSON on
// workflow:events:<executionID>.
type Publisher struct {
	rdb     *redis.Client
	log     Logger
	timeout time.Duration
}

// NewPublisher creates a publisher over an open Redis client.
func NewPublisher(rdb *redis.Client, log Logger) *Publisher {
	return &Publisher{
		rdb:     rdb,
		log:     log,
		timeout: 5 * time.Second,
	}
}

// Attach subscribes the publisher to an execution's emitter. Matches the
// manager's Observer signature.
func (p *Publisher) Attach(executionID string, emitter *events.Emitter) {
	channel := channelPrefix + executionID
	emitter.SubscribeAll(func(ev events.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.log.Warn("failed to marshal event", "event", ev.Name, "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
			p.log.Warn("failed to publish event",
				"channel", channel,
				"event", ev.Name,
				"error", err)
			return
		}
		p.log.Debug("published event", "channel", channel, "event", ev.Name)
	})
}

// Channel returns the pub/sub channel used for an execution.
func Channel(executionID string) string {
	return channelPrefix + executionID
}
