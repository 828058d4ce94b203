package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomwire/internal/log"
)

func runNATSServer(t *testing.T) string {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

type recorder struct {
	mu  sync.Mutex
	ids []int64
	got chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) handle(_ context.Context, userID int64) {
	r.mu.Lock()
	r.ids = append(r.ids, userID)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func (r *recorder) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func TestLocalDeliversToEverySubscriber(t *testing.T) {
	b := NewLocal()
	first, second := newRecorder(), newRecorder()
	require.NoError(t, b.SubscribeUserDeleted(first.handle))
	require.NoError(t, b.SubscribeUserDeleted(second.handle))

	require.NoError(t, b.PublishUserDeleted(context.Background(), 7))

	assert.Equal(t, []int64{7}, first.seen())
	assert.Equal(t, []int64{7}, second.seen())
}

func TestLocalClosed(t *testing.T) {
	b := NewLocal()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.PublishUserDeleted(context.Background(), 1), ErrClosed)
	assert.ErrorIs(t, b.SubscribeUserDeleted(func(context.Context, int64) {}), ErrClosed)
}

func TestNATSFansOutAcrossInstances(t *testing.T) {
	url := runNATSServer(t)

	publisher, err := NewNATS(url, "roomwire.test.users.deleted", log.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })

	other, err := NewNATS(url, "roomwire.test.users.deleted", log.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })

	local, remote := newRecorder(), newRecorder()
	require.NoError(t, publisher.SubscribeUserDeleted(local.handle))
	require.NoError(t, other.SubscribeUserDeleted(remote.handle))

	require.NoError(t, publisher.PublishUserDeleted(context.Background(), 42))

	local.wait(t)
	remote.wait(t)
	assert.Equal(t, []int64{42}, local.seen())
	assert.Equal(t, []int64{42}, remote.seen())
}

func TestNATSDropsMalformedPayload(t *testing.T) {
	url := runNATSServer(t)
	subject := "roomwire.test.malformed"

	b, err := NewNATS(url, subject, log.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	rec := newRecorder()
	require.NoError(t, b.SubscribeUserDeleted(rec.handle))

	raw, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(raw.Close)
	require.NoError(t, raw.Publish(subject, []byte("not json")))
	require.NoError(t, raw.Publish(subject, []byte(`{"userId":0}`)))
	require.NoError(t, raw.Flush())

	require.NoError(t, b.PublishUserDeleted(context.Background(), 3))
	rec.wait(t)
	assert.Equal(t, []int64{3}, rec.seen())
}

func TestNATSRequiresSubject(t *testing.T) {
	_, err := NewNATS("nats://127.0.0.1:1", "", log.Nop())
	assert.Error(t, err)
}
