package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/sirupsen/logrus"
)

// PublishFunc delivers one committed change event to the message bus.
type PublishFunc func(ctx context.Context, event models.ChangeEvent) error

// EventDispatcher forwards committed store events to a message bus, retrying a failed
// publish with exponential backoff before giving up on that event.
type EventDispatcher struct {
	Publish      PublishFunc
	Logger       *logrus.Logger
	DispatcherID string

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewEventDispatcher(publish PublishFunc, logger *logrus.Logger) *EventDispatcher {
	initMetrics(config.MetricsPrefix())
	return &EventDispatcher{
		Publish:        publish,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// PubSubPublisher publishes events as JSON to topic with entity and action attributes.
func PubSubPublisher(topic string) PublishFunc {
	return func(ctx context.Context, event models.ChangeEvent) error {
		_, err := config.PublishLedgerEvent(ctx, topic, event, map[string]string{
			"entity":        string(event.Entity),
			"action":        string(event.Action),
			"correlationId": event.CorrelationId,
		})
		return err
	}
}

// Run forwards events until ctx is done or the channel is closed.
func (d *EventDispatcher) Run(ctx context.Context, events <-chan models.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.dispatchOnce(ctx, event)
		}
	}
}

func (d *EventDispatcher) dispatchOnce(ctx context.Context, event models.ChangeEvent) {
	backoff := d.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := d.Publish(ctx, event)
		if err == nil {
			ForwardedEventsCounter.WithLabelValues("published").Inc()
			return
		}
		if ctx.Err() != nil || attempt >= d.MaxAttempts {
			ForwardedEventsCounter.WithLabelValues("dropped").Inc()
			config.LogError(d.Logger, "outboxDispatcher.go", "dispatchOnce", "Publishing change event", event, err)
			return
		}
		ForwardedEventsCounter.WithLabelValues("retried").Inc()
		d.Logger.WithFields(logrus.Fields{
			"field":         "EventDispatcher",
			"dispatcher_id": d.DispatcherID,
			"attempt":       attempt,
			"entity":        event.Entity,
			"id":            event.ID,
		}).Warn("publish failed, retrying")
		select {
		case <-ctx.Done():
			ForwardedEventsCounter.WithLabelValues("dropped").Inc()
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > d.MaxBackoff {
			backoff = d.MaxBackoff
		}
	}
}
