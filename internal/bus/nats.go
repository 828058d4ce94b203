package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by a bus that has been closed.
var ErrClosed = errors.New("bus: closed")

type userDeletedPayload struct {
	UserID    int64     `json:"userId"`
	DeletedAt time.Time `json:"deletedAt"`
}

// NATS fans notifications out through a NATS subject so every instance
// sharing the subject evicts the account.
type NATS struct {
	nc      *nats.Conn
	subject string
	log     *zerolog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATS connects to url and publishes on subject.
func NewNATS(url, subject string, logger *zerolog.Logger) (*NATS, error) {
	if subject == "" {
		return nil, errors.New("bus: subject is required")
	}
	l := logger.With().Str("component", "bus").Str("subject", subject).Logger()

	nc, err := nats.Connect(url,
		nats.Name("roomwire"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	l.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	return &NATS{nc: nc, subject: subject, log: &l}, nil
}

// PublishUserDeleted sends the notification and flushes so it is on the wire
// before the caller replies.
func (b *NATS) PublishUserDeleted(ctx context.Context, userID int64) error {
	if b.nc.IsClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(userDeletedPayload{UserID: userID, DeletedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish user deleted: %w", err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush user deleted: %w", err)
	}
	return nil
}

// SubscribeUserDeleted registers h for notifications from any instance.
func (b *NATS) SubscribeUserDeleted(h UserDeletedHandler) error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var p userDeletedPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.UserID == 0 {
			b.log.Warn().Err(err).Msg("dropping malformed user deleted notification")
			return
		}
		h(context.Background(), p.UserID)
	})
	if err != nil {
		return fmt.Errorf("subscribe user deleted: %w", err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Close drains subscriptions and closes the connection.
func (b *NATS) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}
