package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweeper_StartStop(t *testing.T) {
	s := NewSweeper(SweeperConfig{Schedule: "*/10 * * * *", AutoMatch: true}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Status().IsRunning)

	// Double start is rejected
	assert.Error(t, s.Start(ctx))

	s.Stop()
	assert.False(t, s.Status().IsRunning)

	// Stop is idempotent
	s.Stop()
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	s := NewSweeper(SweeperConfig{Schedule: "not a schedule"}, nil, zap.NewNop())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.False(t, s.Status().IsRunning)
}

func TestSweeper_Name(t *testing.T) {
	s := NewSweeper(SweeperConfig{Schedule: "*/10 * * * *"}, nil, zap.NewNop())
	assert.Equal(t, "pending-sweeper", s.Name())
}

type stubWorker struct {
	name     string
	started  bool
	stopped  bool
	startErr error
}

func (w *stubWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started = true
	return nil
}

func (w *stubWorker) Stop()        { w.stopped = true }
func (w *stubWorker) Name() string { return w.name }

func TestManager_StartAllAndStopAll(t *testing.T) {
	m := NewManager(zap.NewNop())

	first := &stubWorker{name: "first"}
	second := &stubWorker{name: "second"}
	m.Register(first)
	m.Register(second)
	assert.Equal(t, 2, m.Count())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, first.started)
	assert.True(t, second.started)

	m.StopAll()
	assert.True(t, first.stopped)
	assert.True(t, second.stopped)
}

func TestManager_StartAllAbortsOnError(t *testing.T) {
	m := NewManager(zap.NewNop())

	failing := &stubWorker{name: "failing", startErr: assert.AnError}
	after := &stubWorker{name: "after"}
	m.Register(failing)
	m.Register(after)

	require.Error(t, m.StartAll(context.Background()))
	assert.False(t, after.started)
}
