package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestPoolRunsAllTasksBeforeStop(t *testing.T) {
	p := NewPool(3, zap.NewNop())
	var n atomic.Int64
	for i := 0; i < 50; i++ {
		if err := p.Submit(context.Background(), func(context.Context) { n.Add(1) }); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	p.Stop()
	if got := n.Load(); got != 50 {
		t.Fatalf("ran %d tasks, want 50", got)
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	p := NewPool(1, zap.NewNop())
	var ran atomic.Bool
	_ = p.Submit(context.Background(), func(context.Context) { panic("boom") })
	_ = p.Submit(context.Background(), func(context.Context) { ran.Store(true) })
	p.Stop()
	if !ran.Load() {
		t.Fatal("task after panic did not run")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(1, zap.NewNop())
	p.Stop()
	p.Stop()
	if err := p.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
