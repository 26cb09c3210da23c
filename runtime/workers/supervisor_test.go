package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type PanicWorker struct {
	calls atomic.Int32
}

func (w *PanicWorker) Run(context.Context) error {
	w.calls.Add(1)
	panic("boom")
}

type OneShotWorker struct {
	calls atomic.Int32
}

func (w *OneShotWorker) Run(context.Context) error {
	w.calls.Add(1)
	return nil
}

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	worker := &PanicWorker{}

	sup := NewSupervisor(slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	// Waiting for panics and restarts
	time.Sleep(900 * time.Millisecond)

	req.GreaterOrEqual(worker.calls.Load(), int32(2))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	worker := &OneShotWorker{}

	sup := NewSupervisor(slog.Default())

	// Given a channel to notify when Run() terminated
	done := make(chan struct{})

	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then the supervisor detected a success and retired the worker
		req.Equal(int32(1), worker.calls.Load())
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)
	worker := &PanicWorker{}

	sup := NewSupervisor(slog.Default())

	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	time.Sleep(300 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Stop should terminate the supervision loop")
	}
}
