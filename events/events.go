package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// GameFinished is published once per completed game.
type GameFinished struct {
	ResultID    string    `json:"resultId"`
	TableID     string    `json:"tableId"`
	Deal        uint64    `json:"deal"`
	PlayerNames [2]string `json:"playerNames"`
	Scores      [2]int    `json:"scores"`
	WinnerIndex int       `json:"winnerIndex"`
	Message     string    `json:"message"`
	Moves       int       `json:"moves"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Publisher fans out game events to other services.
type Publisher interface {
	PublishGameFinished(ctx context.Context, ev GameFinished) error
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishGameFinished(context.Context, GameFinished) error { return nil }
func (Nop) Close()                                                  {}

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// Connect dials url with reconnect options. An empty url yields Nop.
func Connect(url, subject string) (Publisher, error) {
	if url == "" {
		return Nop{}, nil
	}
	opts := []nats.Option{
		nats.Name("memory-game"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "tag", "events", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "tag", "events", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to NATS", "tag", "events", "url", nc.ConnectedUrl(), "subject", subject)
	return NewNATSPublisher(nc, subject), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject}
}

// PublishGameFinished encodes ev and publishes it. ctx bounds the flush.
func (p *NATSPublisher) PublishGameFinished(ctx context.Context, ev GameFinished) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return err
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		slog.Warn("NATS drain failed", "tag", "events", "err", err)
	}
}
