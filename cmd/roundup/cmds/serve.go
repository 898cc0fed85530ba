package cmds

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/roundup/pkg/compaction"
	"github.com/go-go-golems/roundup/pkg/debugapi"
	"github.com/go-go-golems/roundup/pkg/redisstream"
)

type ServeCommand struct {
	*glazed_cmds.CommandDescription
}

type ServeSettings struct {
	Addr      string `glazed:"addr"`
	FlagsFile string `glazed:"flags-file"`
}

var _ glazed_cmds.WriterCommand = (*ServeCommand)(nil)

func NewServeCommand() (*ServeCommand, error) {
	sections, err := summarizerSections()
	if err != nil {
		return nil, err
	}
	eventsSection, err := redisstream.NewSection()
	if err != nil {
		return nil, err
	}
	return &ServeCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"serve",
			glazed_cmds.WithShort("Serve the compaction debug API and metrics"),
			glazed_cmds.WithLong("Serve the debug HTTP routes and /metrics over the conversation store. "+
				"Compaction events are routed in-process, or over Redis Streams when enabled."),
			glazed_cmds.WithFlags(
				fields.New("addr", fields.TypeString, fields.WithDefault(":8089"),
					fields.WithHelp("HTTP listen address")),
				flagsFileFlag(),
			),
			glazed_cmds.WithSections(append(sections, eventsSection)...),
		),
	}, nil
}

func (c *ServeCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, _ io.Writer) error {
	s := &ServeSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	es := redisstream.Settings{}
	if err := parsed.DecodeSectionInto(redisstream.SectionSlug, &es); err != nil {
		return errors.Wrap(err, "decode events settings")
	}
	cs, err := decodeCompactionSettings(parsed)
	if err != nil {
		return err
	}

	transport, err := redisstream.Open(es)
	if err != nil {
		return errors.Wrap(err, "create event router")
	}
	defer func() { _ = transport.Close() }()
	if err := transport.EnsureGroupAtTail(ctx); err != nil {
		return err
	}
	router := transport.Router
	publisher := transport.Publisher()
	router.AddHandler("compaction-log", transport.Topic(), logCompactionEvent)

	flags := compaction.Flags()
	if err := LoadFlagsFile(s.FlagsFile, flags); err != nil {
		return err
	}
	cs.ApplyOverrides(flags)

	registry, err := NewToolRegistry()
	if err != nil {
		return err
	}
	svcOpts := []debugapi.ServiceOption{
		debugapi.WithToolRegistry(registry),
		debugapi.WithFlags(flags),
		debugapi.WithSplitPolicy(cs.Policy()),
		debugapi.WithEventPublisher(publisher),
	}
	summarizer, err := NewSummarizer(parsed, registry, compaction.WithEventPublisher(publisher))
	if err != nil {
		// inspect, split and clear still work without a model
		log.Warn().Err(err).Msg("summarizer unavailable, dry-run and compact routes will return 503")
	} else {
		svcOpts = append(svcOpts, debugapi.WithSummarizer(summarizer))
	}

	store, err := OpenStore(parsed)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	svc := debugapi.NewService(store, svcOpts...)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           debugapi.NewHandler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	eg, groupCtx := errgroup.WithContext(srvCtx)

	eg.Go(func() error {
		return router.Run(groupCtx)
	})

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down")
		case <-groupCtx.Done():
		}
		srvCancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		return nil
	})

	eg.Go(func() error {
		select {
		case <-router.Running():
		case <-groupCtx.Done():
			return nil
		}
		log.Info().Str("addr", s.Addr).Bool("redis", transport.RedisEnabled()).Str("topic", transport.Topic()).Msg("starting roundup debug server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logCompactionEvent(msg *message.Message) error {
	ev, err := compaction.DecodeEvent(msg)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable compaction event")
		return nil
	}
	e := log.Info()
	if ev.Error != "" || ev.Empty {
		e = log.Warn().Str("error", ev.Error)
	}
	e.Str("kind", ev.Kind).
		Str("session_id", ev.SessionID).
		Str("boundary_round_id", ev.BoundaryRoundID).
		Str("outcome", ev.Outcome).
		Int("summary_len", ev.SummaryLength).
		Bool("empty", ev.Empty).
		Int64("duration_ms", ev.DurationMs).
		Msg("compaction event")
	return nil
}
