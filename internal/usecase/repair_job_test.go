package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarLake/pkg/logger"
)

func TestRepairJobSingleSymbol(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.store.InsertBars(ctx, "AAPL", minuteBars("AAPL", "2024-01-02", "09:00:00", "09:03:00"))
	_, _ = f.store.InsertBars(ctx, "MSFT", minuteBars("MSFT", "2024-01-02", "09:00:00", "09:03:00"))

	job := NewRepairJob(newRepairer(f), logger.Nop())
	assert.Equal(t, RepairJobType, job.Type())

	require.NoError(t, job.Handle(ctx, json.RawMessage(`{"symbol":"aapl"}`)))
	assert.Equal(t, 4, f.store.count("AAPL"))
	assert.Equal(t, 2, f.store.count("MSFT"))

	require.NoError(t, job.Handle(ctx, json.RawMessage(`{}`)))
	assert.Equal(t, 4, f.store.count("MSFT"))
}

func TestRepairJobBadPayload(t *testing.T) {
	job := NewRepairJob(newRepairer(newFixture()), logger.Nop())
	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`[`)))
}

type recordingQueue struct {
	mu    sync.Mutex
	types []string
}

func (q *recordingQueue) Enqueue(_ context.Context, msgType string, _ interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, msgType)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.types)
}

func TestRepairSchedulerEnqueues(t *testing.T) {
	q := &recordingQueue{}
	s := NewRepairScheduler(10*time.Millisecond, q, nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return q.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, RepairJobType, q.types[0])
}

func TestRepairSchedulerDisabled(t *testing.T) {
	s := NewRepairScheduler(0, nil, nil, logger.Nop())
	assert.False(t, s.Enabled())
	s.Run(context.Background())
}
