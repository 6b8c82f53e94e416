package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher carries confirmed state-change events from the sequencer toward
// room observers.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// Sink receives events for a single auction room. The room broadcaster
// implements this.
type Sink interface {
	Broadcast(auctionID string, ev *Event)
}

// LocalPublisher delivers events directly to an in-process sink. Used for
// single-node deployments and tests; the JetStream pair replaces it when
// multiple gateway instances share one event log.
type LocalPublisher struct {
	sink Sink
}

// NewLocalPublisher creates a publisher that feeds the given sink.
func NewLocalPublisher(sink Sink) *LocalPublisher {
	return &LocalPublisher{sink: sink}
}

func (p *LocalPublisher) Publish(ctx context.Context, ev *Event) error {
	p.sink.Broadcast(ev.AuctionID, ev)
	return nil
}

// JetStreamConfig holds configuration for the auction event stream.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // e.g. "auction.events"
	MaxAge        time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns defaults for the auction event stream.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "AUCTION_EVENTS",
		SubjectPrefix: "auction.events",
		MaxAge:        24 * time.Hour,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// JetStreamPublisher publishes auction events to a NATS JetStream stream,
// one subject per auction so per-auction ordering is preserved end to end.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects to NATS and ensures the event stream exists.
func NewJetStreamPublisher(ctx context.Context, config JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      config.StreamName,
		Subjects:  []string{config.SubjectPrefix + ".*"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    config.MaxAge,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create/update stream: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: config}, nil
}

// Publish writes the event to the stream and waits for the server ack, so a
// reported publish is durable on the backbone.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, ev.AuctionID)
	ack, err := p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(ev.Type)).
		Uint64("seq", ack.Sequence).
		Msg("event published")
	return nil
}

// Close closes the underlying NATS connection.
func (p *JetStreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
