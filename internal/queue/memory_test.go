package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Push(ctx, id); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	if n, _ := q.Len(ctx); n != 3 {
		t.Errorf("expected length 3, got %d", n)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := q.Pop(ctx, time.Second)
		if err != nil || !ok {
			t.Fatalf("Pop failed: ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestMemoryPopTimeout(t *testing.T) {
	q := NewMemory()

	start := time.Now()
	_, ok, err := q.Pop(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected empty pop")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Pop returned before the timeout")
	}
}

func TestMemoryPopWakesOnPush(t *testing.T) {
	q := NewMemory()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(context.Background(), "late")
	}()

	got, ok, err := q.Pop(context.Background(), 2*time.Second)
	if err != nil || !ok || got != "late" {
		t.Fatalf("expected late, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestMemoryPopCancelled(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := q.Pop(ctx, time.Second); err == nil {
		t.Fatal("expected context error")
	}
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	q.Push(ctx, "a")
	q.Push(ctx, "b")

	if err := q.Purge(ctx); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("expected empty queue, got %d", n)
	}
}
