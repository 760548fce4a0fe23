package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonbook/internal/database"
	"salonbook/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (s *recordingSender) Send(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, n.ClientPhone)
	return nil
}

func newOutbox(t *testing.T, sender Sender, opts DispatcherOptions) (*Dispatcher, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(t.TempDir()+"/outbox.db", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if opts.RatePerSecond == 0 {
		opts.RatePerSecond = 1000
		opts.Burst = 100
	}
	return NewDispatcher(db, sender, opts, &logger), db
}

func enqueue(t *testing.T, db *database.DB, phone string) *models.Notification {
	t.Helper()
	n := &models.Notification{ClientPhone: phone, ClientName: "X", Message: "slot open"}
	require.NoError(t, db.EnqueueNotification(context.Background(), n))
	return n
}

func TestDispatchPendingDelivers(t *testing.T) {
	sender := &recordingSender{}
	d, db := newOutbox(t, sender, DispatcherOptions{})
	ctx := context.Background()

	enqueue(t, db, "+1")
	enqueue(t, db, "+2")

	sent, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []string{"+1", "+2"}, sender.sent)

	depth, err := db.CountPendingNotifications(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth)
}

func TestDispatchRetriesThenParks(t *testing.T) {
	sender := &recordingSender{fail: errors.New("gateway down")}
	d, db := newOutbox(t, sender, DispatcherOptions{MaxRetries: 2})
	ctx := context.Background()

	n := enqueue(t, db, "+3")

	// First failure keeps the row pending.
	sent, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	pending, err := db.PendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "gateway down", pending[0].LastError)

	// Second failure is terminal: the row leaves the queue as failed.
	_, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	pending, err = db.PendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Recovery after parking does not resurrect the row.
	sender.mu.Lock()
	sender.fail = nil
	sender.mu.Unlock()
	sent, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "terminally failed notification %d must stay parked", n.ID)
}

func TestDispatchBatchLimit(t *testing.T) {
	sender := &recordingSender{}
	d, db := newOutbox(t, sender, DispatcherOptions{BatchSize: 2})
	ctx := context.Background()

	for _, phone := range []string{"+4", "+5", "+6"} {
		enqueue(t, db, phone)
	}

	sent, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}
