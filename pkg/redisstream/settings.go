package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"

	"github.com/go-go-golems/roundup/pkg/compaction"
)

// SectionSlug is the glazed section holding the event transport flags.
const SectionSlug = "events"

// Settings selects where compaction events go. Without Redis they stay on an
// in-process channel.
type Settings struct {
	RedisEnabled bool   `glazed:"redis-enabled"`
	Addr         string `glazed:"redis-addr"`
	Group        string `glazed:"redis-group"`
	Consumer     string `glazed:"redis-consumer"`
	Topic        string `glazed:"events-topic"`
	Verbose      bool   `glazed:"events-verbose"`
}

// EventsTopic falls back to the compaction default when no topic is set.
func (s Settings) EventsTopic() string {
	if s.Topic == "" {
		return compaction.EventsTopic
	}
	return s.Topic
}

func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Compaction event transport (Watermill, optionally over Redis Streams)",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool, fields.WithDefault(false),
				fields.WithHelp("Publish compaction events to Redis Streams")),
			fields.New("redis-addr", fields.TypeString, fields.WithDefault("localhost:6379"),
				fields.WithHelp("Redis address host:port")),
			fields.New("redis-group", fields.TypeString, fields.WithDefault("roundup"),
				fields.WithHelp("Redis consumer group")),
			fields.New("redis-consumer", fields.TypeString, fields.WithDefault("roundup-1"),
				fields.WithHelp("Redis consumer name")),
			fields.New("events-topic", fields.TypeString, fields.WithDefault(compaction.EventsTopic),
				fields.WithHelp("Topic compaction events are published on")),
			fields.New("events-verbose", fields.TypeBool, fields.WithDefault(false),
				fields.WithHelp("Log every routed message")),
		),
	)
}
