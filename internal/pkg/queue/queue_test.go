package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_AllJobsComplete(t *testing.T) {
	q := NewQueue(testLogger(), 4, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(func(ctx context.Context) error {
			time.Sleep(50 * time.Millisecond)
			completed.Add(1)
			return nil
		})
		if !ok {
			t.Fatalf("enqueue %d rejected", i)
		}
	}

	q.Shutdown()

	if completed.Load() != 5 {
		t.Fatalf("completed = %d, want 5", completed.Load())
	}
	if stats := q.Stats(); stats.TotalEnqueued != 5 || stats.TotalSucceeded != 5 {
		t.Fatalf("unexpected stats: %s", q.String())
	}
}

func TestQueue_ErrorHandlerCalled(t *testing.T) {
	q := NewQueue(testLogger(), 2, 5)

	var errorCount atomic.Int32
	q.SetErrorHandler(func(err error, job Job) {
		errorCount.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error { return nil })
	q.Enqueue(func(ctx context.Context) error { return errors.New("site unreachable") })

	q.Shutdown()

	stats := q.Stats()
	if stats.TotalSucceeded != 1 || stats.TotalFailed != 1 {
		t.Fatalf("succeeded=%d failed=%d, want 1/1", stats.TotalSucceeded, stats.TotalFailed)
	}
	if errorCount.Load() != 1 {
		t.Fatalf("error handler calls = %d, want 1", errorCount.Load())
	}
}

func TestQueue_PanicDoesNotKillWorker(t *testing.T) {
	q := NewQueue(testLogger(), 1, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error {
		panic("adapter blew up")
	})

	var executed atomic.Bool
	q.Enqueue(func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	q.Shutdown()

	if q.Stats().TotalPanics != 1 {
		t.Fatalf("panics = %d, want 1", q.Stats().TotalPanics)
	}
	if !executed.Load() {
		t.Fatalf("job after panic never ran")
	}
}

func TestQueue_FullQueueDropsJob(t *testing.T) {
	q := NewQueue(testLogger(), 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	block := make(chan struct{})
	q.Enqueue(func(ctx context.Context) error {
		<-block
		return nil
	})
	time.Sleep(50 * time.Millisecond) // 等首个任务占住 worker

	q.Enqueue(func(ctx context.Context) error { return nil }) // 占满容量

	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("expected enqueue to fail on full queue")
	}

	close(block)
	q.Shutdown()

	if q.Stats().TotalDropped < 1 {
		t.Fatalf("dropped = %d, want >= 1", q.Stats().TotalDropped)
	}
}

func TestQueue_EnqueueBlockingHonorsContext(t *testing.T) {
	q := NewQueue(testLogger(), 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	block := make(chan struct{})
	q.Enqueue(func(ctx context.Context) error {
		<-block
		return nil
	})
	time.Sleep(50 * time.Millisecond)
	q.Enqueue(func(ctx context.Context) error { return nil })

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer waitCancel()

	start := time.Now()
	err := q.EnqueueBlocking(waitCtx, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatalf("expected context error on full queue")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}

	close(block)
	q.Shutdown()
}

func TestQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewQueue(testLogger(), 2, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 6; i++ {
		// 队列可能被慢 worker 占满，这里必须用阻塞入队保证 6 个都进去
		if err := q.EnqueueBlocking(ctx, func(ctx context.Context) error {
			time.Sleep(30 * time.Millisecond)
			completed.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	q.Shutdown()

	if completed.Load() != 6 {
		t.Fatalf("completed = %d, want all 6 before shutdown returns", completed.Load())
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("queue accepted job after shutdown")
	}
}
