package orchestrator

import (
	"context"
	"testing"
	"time"
)

func TestLimiterCapsConcurrency(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()

	s1, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	s2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	// 第三个获取应当阻塞
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(blocked); err == nil {
		t.Fatal("Acquire() succeeded beyond the slot cap")
	}

	s1.Release()
	s3, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	s3.Release()
	s2.Release()
}

func TestLimiterAcquireCancelled(t *testing.T) {
	l := NewLimiter(1)
	slot, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer slot.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Acquire() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled Acquire() did not return")
	}
}

func TestSlotReleaseIdempotent(t *testing.T) {
	l := NewLimiter(1)
	slot, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	slot.Release()
	slot.Release() // 重复释放不应归还第二个槽

	s2, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after double release error: %v", err)
	}
	defer s2.Release()

	blocked, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(blocked); err == nil {
		t.Fatal("double release created an extra slot")
	}
}

func TestSlotNilRelease(t *testing.T) {
	var slot *Slot
	slot.Release() // 不应 panic
}

func TestLimiterDefaultsMax(t *testing.T) {
	if got := NewLimiter(0).Max(); got != 3 {
		t.Fatalf("Max() = %d, want default 3", got)
	}
	if got := NewLimiter(-1).Max(); got != 3 {
		t.Fatalf("Max() = %d, want default 3", got)
	}
}

func TestLimiterFIFOOrder(t *testing.T) {
	l := NewLimiter(1)
	first, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	order := make(chan int, 2)
	started := make(chan struct{})
	go func() {
		close(started)
		s, err := l.Acquire(context.Background())
		if err != nil {
			return
		}
		order <- 1
		time.Sleep(10 * time.Millisecond)
		s.Release()
	}()
	<-started
	time.Sleep(20 * time.Millisecond) // 保证第一个等待者已排队

	go func() {
		s, err := l.Acquire(context.Background())
		if err != nil {
			return
		}
		order <- 2
		s.Release()
	}()
	time.Sleep(20 * time.Millisecond)

	first.Release()

	for want := 1; want <= 2; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("acquire order = %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter did not acquire a slot")
		}
	}
}
