package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"quiz-participation-service/internal/domain"
)

const eventChannel = "quiz:attempt-events"

// LocalDeliverer receives events published by other instances.
type LocalDeliverer interface {
	Deliver(ev domain.AttemptEvent)
}

// EventRelay shares attempt events between service instances over Redis pub/sub,
// so a live feed on one node sees toggles made through another.
type EventRelay struct {
	client   *redis.Client
	instance string
	timeout  time.Duration
	log      logrus.FieldLogger
}

type envelope struct {
	Origin string              `json:"origin"`
	Event  domain.AttemptEvent `json:"event"`
}

func NewEventRelay(client *redis.Client, log logrus.FieldLogger) *EventRelay {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventRelay{
		client:   client,
		instance: uuid.NewString(),
		timeout:  2 * time.Second,
		log:      log.WithField("component", "event_relay"),
	}
}

// Forward publishes ev for other instances. Failures are logged and dropped.
func (r *EventRelay) Forward(ev domain.AttemptEvent) {
	payload, err := json.Marshal(envelope{Origin: r.instance, Event: ev})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		r.log.WithError(err).WithField("attempt_id", ev.AttemptID).Warn("relay publish failed")
	}
}

// Start subscribes to the shared channel and delivers foreign events to local until ctx
// is cancelled. It returns once the subscription is confirmed.
func (r *EventRelay) Start(ctx context.Context, local LocalDeliverer) error {
	sub := r.client.Subscribe(ctx, eventChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
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
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.WithError(err).Warn("relay: bad payload")
					continue
				}
				if env.Origin == r.instance {
					continue
				}
				local.Deliver(env.Event)
			}
		}
	}()
	return nil
}
