package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/common"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
	"github.com/joseph-ayodele/responder-tracker/internal/repository"
	"github.com/joseph-ayodele/responder-tracker/internal/services/interpret"
)

type fakeHandler struct {
	mu      sync.Mutex
	handled []string
	reqIDs  []string
	block   chan struct{}
	fail    bool
}

func (h *fakeHandler) HandleMessage(ctx context.Context, msg interpret.Message) (*repository.Record, error) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, msg.MessageID)
	h.reqIDs = append(h.reqIDs, common.RequestIDFromContext(ctx))
	if h.fail {
		return nil, errors.New("store down")
	}
	return &repository.Record{MessageID: msg.MessageID, Result: pipeline.Result{Status: constants.StatusResponding}}, nil
}

func (h *fakeHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...)
}

type fakeObserver struct {
	mu      sync.Mutex
	results map[string]int
}

func (o *fakeObserver) QueueDepthChanged(int) {}

func (o *fakeObserver) JobFinished(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = map[string]int{}
	}
	o.results[result]++
}

func (o *fakeObserver) count(result string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results[result]
}

func job(id string) Job {
	return Job{Message: interpret.Message{MessageID: id}, TraceID: "trace-" + id}
}

func TestQueueProcessesInOrderWithOneWorker(t *testing.T) {
	h := &fakeHandler{}
	obs := &fakeObserver{}
	q := NewMessageQueue(h, nil, WithWorkers(1), WithQueueSize(10), WithObserver(obs))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), job(id)))
	}
	q.Shutdown(context.Background())

	assert.Equal(t, []string{"a", "b", "c"}, h.ids())
	assert.Equal(t, []string{"trace-a", "trace-b", "trace-c"}, h.reqIDs)
	assert.Equal(t, 3, obs.count("ok"))
}

func TestQueueReportsFailures(t *testing.T) {
	h := &fakeHandler{fail: true}
	obs := &fakeObserver{}
	q := NewMessageQueue(h, nil, WithWorkers(2), WithObserver(obs))

	require.NoError(t, q.Enqueue(context.Background(), job("a")))
	require.NoError(t, q.Enqueue(context.Background(), job("b")))
	q.Shutdown(context.Background())

	assert.Equal(t, 2, obs.count("error"))
}

func TestQueueBackpressure(t *testing.T) {
	h := &fakeHandler{block: make(chan struct{})}
	obs := &fakeObserver{}
	q := NewMessageQueue(h, nil, WithWorkers(1), WithQueueSize(1), WithObserver(obs))

	// one job held by the worker, one in the buffer
	require.NoError(t, q.Enqueue(context.Background(), job("a")))
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), job("b")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, job("c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrQueueFull)
	assert.Equal(t, 503, common.HTTPStatus(err))
	assert.Equal(t, 1, obs.count("rejected"))

	close(h.block)
	q.Shutdown(context.Background())
	assert.Equal(t, []string{"a", "b"}, h.ids())
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	q := NewMessageQueue(&fakeHandler{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	assert.ErrorIs(t, q.Enqueue(context.Background(), job("late")), ErrShuttingDown)
}
