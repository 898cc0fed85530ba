package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/go-go-golems/geppetto/pkg/events"
	"github.com/go-go-golems/geppetto/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roundup/pkg/compaction"
)

// Transport owns the event router and, when Redis is enabled, the single
// Redis client shared by its publisher, its subscriber and group setup.
type Transport struct {
	Router   *events.EventRouter
	settings Settings
	client   redis.UniversalClient
}

// Open builds the transport. Without Redis, events stay on an in-process
// channel and no client is created.
func Open(s Settings) (*Transport, error) {
	t := &Transport{settings: s}
	if !s.RedisEnabled {
		router, err := events.NewEventRouter(verboseOption(s.Verbose))
		if err != nil {
			return nil, err
		}
		t.Router = router
		return t, nil
	}

	t.client = redis.NewClient(&redis.Options{Addr: s.Addr})
	router, err := newRedisRouter(t.client, s)
	if err != nil {
		_ = t.client.Close()
		return nil, err
	}
	t.Router = router
	return t, nil
}

func newRedisRouter(client redis.UniversalClient, s Settings) (*events.EventRouter, error) {
	codec := rstream.DefaultMarshallerUnmarshaller{}
	wmLogger := helpers.NewWatermill(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: codec,
	}, wmLogger)
	if err != nil {
		return nil, errors.Wrap(err, "redis stream publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  codec,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, wmLogger)
	if err != nil {
		return nil, errors.Wrap(err, "redis stream subscriber")
	}
	return events.NewEventRouter(
		events.WithPublisher(message.Publisher(pub)),
		events.WithSubscriber(message.Subscriber(sub)),
		verboseOption(s.Verbose),
	)
}

func verboseOption(v bool) events.EventRouterOption {
	if v {
		return events.WithVerbose(true)
	}
	return func(r *events.EventRouter) {}
}

// Topic is the stream compaction events are published on.
func (t *Transport) Topic() string {
	return t.settings.EventsTopic()
}

func (t *Transport) RedisEnabled() bool { return t.client != nil }

// Publisher returns a compaction event publisher on the transport's topic.
func (t *Transport) Publisher() *compaction.WatermillPublisher {
	return compaction.NewWatermillPublisher(t.Router.Publisher, t.Topic())
}

// EnsureGroupAtTail creates the consumer group at the stream tail so a new
// consumer does not replay old compaction events. It is a no-op without
// Redis.
func (t *Transport) EnsureGroupAtTail(ctx context.Context) error {
	if t.client == nil {
		return nil
	}
	topic := t.Topic()
	err := t.client.XGroupCreateMkStream(ctx, topic, t.settings.Group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", t.settings.Group, topic)
	}
	log.Info().Str("stream", topic).Str("group", t.settings.Group).Msg("created redis consumer group at tail")
	return nil
}

// Close shuts the router down, then releases the Redis client.
func (t *Transport) Close() error {
	var err error
	if t.Router != nil {
		err = t.Router.Close()
	}
	if t.client != nil {
		if cerr := t.client.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close redis client")
		}
	}
	return err
}
