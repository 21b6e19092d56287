package diagnostics

import (
	"sync"
	"testing"
	"time"
)

func TestRecordFrameEncodedAndDropped_Invariant(t *testing.T) {
	d := New()
	now := time.Now()
	for i := 0; i < 10; i++ {
		d.RecordFrameEncoded(1000, i%5 == 0, now.Add(time.Duration(i)*time.Millisecond))
	}
	for i := 0; i < 3; i++ {
		d.RecordFrameDropped()
	}

	snap := d.GetReport()
	if snap.FramesEncoded != 10 {
		t.Fatalf("frames_encoded = %d, want 10", snap.FramesEncoded)
	}
	if snap.FramesDropped != 3 {
		t.Fatalf("frames_dropped = %d, want 3", snap.FramesDropped)
	}
	if snap.Keyframes != 2 {
		t.Fatalf("keyframes = %d, want 2", snap.Keyframes)
	}
}

func TestDropRate(t *testing.T) {
	var s Snapshot
	if s.DropRate() != 0 {
		t.Fatalf("drop_rate with no observations should be 0, got %v", s.DropRate())
	}
	s.FramesEncoded = 7
	s.FramesDropped = 3
	if got, want := s.DropRate(), 0.3; got != want {
		t.Fatalf("drop_rate = %v, want %v", got, want)
	}
}

func TestReset_ZeroesEverything(t *testing.T) {
	d := New()
	now := time.Now()
	d.RecordFrameEncoded(500, true, now)
	d.RecordFrameDropped()
	d.RecordHeartbeatSent()
	d.RecordReconnectAttempt()
	d.RecordSuccessfulReconnect(now)
	d.RecordEncodingError()
	d.RecordNetworkError()

	d.Reset()

	snap := d.GetReport()
	if snap.FramesEncoded != 0 || snap.FramesDropped != 0 || snap.HeartbeatsSent != 0 ||
		snap.ReconnectAttempts != 0 || snap.SuccessfulReconnects != 0 ||
		snap.EncodingErrors != 0 || snap.NetworkErrors != 0 || snap.Keyframes != 0 {
		t.Fatalf("expected all counters zero after reset, got %+v", snap)
	}
	if !snap.ConnectionStart.IsZero() {
		t.Fatal("expected connection_start cleared after reset")
	}
}

func TestFPSWindowRecomputesAfterOneSecond(t *testing.T) {
	d := New()
	base := time.Now()
	for i := 0; i < 5; i++ {
		d.RecordFrameEncoded(100, false, base.Add(time.Duration(i)*10*time.Millisecond))
	}
	// The first compute runs on the first frame (one frame in the window);
	// the next four arrive within 1s of it, so that value stands.
	snap := d.GetReport()
	if snap.CurrentFPS != 1 {
		t.Fatalf("fps = %v, want 1 from the first compute", snap.CurrentFPS)
	}

	// A frame well past the 1s window should trim earlier samples on the
	// next recompute.
	d.RecordFrameEncoded(100, false, base.Add(2*time.Second))
	snap2 := d.GetReport()
	if snap2.CurrentFPS > 2 {
		t.Fatalf("fps = %v, want old samples trimmed out of the window", snap2.CurrentFPS)
	}
}

func TestConcurrentRecording(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	now := time.Now()
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.RecordFrameEncoded(10, false, now.Add(time.Duration(i)*time.Microsecond))
		}(i)
	}
	wg.Wait()

	snap := d.GetReport()
	if snap.FramesEncoded != 100 {
		t.Fatalf("frames_encoded = %d, want 100 under concurrency", snap.FramesEncoded)
	}
}
