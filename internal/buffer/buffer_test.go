package buffer

import (
	"sync"
	"testing"
)

func kf(ts int64) Frame  { return Frame{Data: []byte("k"), IsKeyframe: true, TimestampMs: ts} }
func pf(ts int64) Frame  { return Frame{Data: []byte("p"), IsKeyframe: false, TimestampMs: ts} }

func TestTryPush_AcceptsUntilFull(t *testing.T) {
	b := New(4)
	for i := 0; i < 4; i++ {
		if r := b.TryPush(pf(int64(i))); r != Accepted {
			t.Fatalf("push %d: want Accepted, got %v", i, r)
		}
	}
	if b.Len() != 4 {
		t.Fatalf("len = %d, want 4", b.Len())
	}
}

func TestTryPush_NonKeyframeFullOfKeyframesRejected(t *testing.T) {
	b := New(2)
	b.TryPush(kf(1))
	b.TryPush(kf(2))
	if r := b.TryPush(pf(3)); r != DroppedNew {
		t.Fatalf("want DroppedNew, got %v", r)
	}
	if b.Len() != 2 {
		t.Fatalf("len = %d, want unchanged 2", b.Len())
	}
}

func TestTryPush_EvictsOldestNonKeyframe(t *testing.T) {
	// S4 from spec: capacity 4, holds [K, P, P, P]; push P5 evicts oldest P.
	b := New(4)
	b.TryPush(kf(1))
	b.TryPush(pf(2))
	b.TryPush(pf(3))
	b.TryPush(pf(4))

	r := b.TryPush(pf(5))
	if r != DroppedOldPFrame {
		t.Fatalf("want DroppedOldPFrame, got %v", r)
	}
	if b.Len() != 4 {
		t.Fatalf("len = %d, want 4", b.Len())
	}

	first, ok := b.Pop()
	if !ok || !first.IsKeyframe {
		t.Fatalf("expected keyframe to survive at head, got %+v ok=%v", first, ok)
	}
	second, ok := b.Pop()
	if !ok || second.TimestampMs != 3 {
		t.Fatalf("expected oldest P (ts=2) evicted, next is ts=3, got %+v", second)
	}
}

func TestTryPush_KeyframeOverflowTransient(t *testing.T) {
	// Capacity 4 already full of keyframes: a fifth keyframe finds no
	// non-keyframe to evict, so it is admitted anyway -> transient size 5.
	b := New(4)
	b.TryPush(kf(1))
	b.TryPush(kf(2))
	b.TryPush(kf(3))
	b.TryPush(kf(4))

	r := b.TryPush(kf(5))
	if r != Accepted {
		t.Fatalf("keyframe insertion always reports Accepted, got %v", r)
	}
	if b.Len() != 5 {
		t.Fatalf("expected transient overflow to 5, got %d", b.Len())
	}
	if b.Len() > b.Capacity()+1 {
		t.Fatalf("invariant violated: size exceeds capacity+1")
	}
}

func TestTryPush_KeyframeEvictsOldestNonKeyframeOnOverflow(t *testing.T) {
	b := New(2)
	b.TryPush(kf(1))
	b.TryPush(pf(2))
	b.TryPush(kf(3)) // overflow to 3, evicts the P at index1

	if b.Len() != 2 {
		t.Fatalf("len = %d, want 2 after eviction", b.Len())
	}
	f1, _ := b.Pop()
	f2, _ := b.Pop()
	if !f1.IsKeyframe || !f2.IsKeyframe {
		t.Fatalf("expected both survivors to be keyframes, got %+v %+v", f1, f2)
	}
}

func TestPop_FIFO(t *testing.T) {
	b := New(10)
	for i := 0; i < 5; i++ {
		b.TryPush(pf(int64(i)))
	}
	for i := 0; i < 5; i++ {
		f, ok := b.Pop()
		if !ok || f.TimestampMs != int64(i) {
			t.Fatalf("pop %d: want ts=%d, got %+v ok=%v", i, i, f, ok)
		}
	}
	if _, ok := b.Pop(); ok {
		t.Fatal("expected empty buffer to report ok=false")
	}
}

func TestClear(t *testing.T) {
	b := New(4)
	b.TryPush(kf(1))
	b.TryPush(pf(2))
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("len after clear = %d, want 0", b.Len())
	}
	if _, ok := b.Pop(); ok {
		t.Fatal("expected no frames after clear")
	}
}

func TestUtilizationAndIsFull(t *testing.T) {
	b := New(4)
	if b.Utilization() != 0 {
		t.Fatalf("utilization = %v, want 0", b.Utilization())
	}
	b.TryPush(pf(1))
	b.TryPush(pf(2))
	if u := b.Utilization(); u != 50 {
		t.Fatalf("utilization = %v, want 50", u)
	}
	b.TryPush(pf(3))
	b.TryPush(pf(4))
	if !b.IsFull() {
		t.Fatal("expected buffer to report full")
	}
}

func TestConcurrentPushPop(t *testing.T) {
	b := New(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.TryPush(pf(int64(i)))
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Pop()
		}()
	}
	wg.Wait()
	if b.Len() > b.Capacity()+1 {
		t.Fatalf("invariant violated under concurrency: len=%d cap=%d", b.Len(), b.Capacity())
	}
}
