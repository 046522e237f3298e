package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  bool
}

func (r *recordingEmitter) Emit(ctx context.Context, e Event) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestDispatcherDelivers(t *testing.T) {
	em := &recordingEmitter{}
	reg := prometheus.NewRegistry()
	d := NewDispatcher(em, time.Second, zap.NewNop(), reg)

	id := uuid.New()
	d.Notify(Event{UserID: uuid.New(), Action: ActionClientUpdated, Details: "Name: 'a' → 'b'", ClientID: &id})
	d.Wait()

	require.Len(t, em.events, 1)
	assert.Equal(t, ActionClientUpdated, em.events[0].Action)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.outcome.WithLabelValues(ActionClientUpdated, "sent")))
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	em := &recordingEmitter{err: errors.New("finance api down")}
	d := NewDispatcher(em, time.Second, zap.NewNop(), nil)

	d.Notify(Event{Action: ActionClientDeleted})
	d.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(d.outcome.WithLabelValues(ActionClientDeleted, "failed")))
}

func TestDispatcherNeverBlocksCaller(t *testing.T) {
	em := &recordingEmitter{block: true}
	d := NewDispatcher(em, 50*time.Millisecond, zap.NewNop(), nil)

	start := time.Now()
	d.Notify(Event{Action: ActionClientCreated})
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	d.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(d.outcome.WithLabelValues(ActionClientCreated, "failed")))
}
