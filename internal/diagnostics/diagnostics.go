// Package diagnostics aggregates pipeline health counters and windowed rate
// calculators under concurrent updates from the capture, encode, and
// transport contexts.
package diagnostics

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	rateWindow  = time.Second
	jitterRing  = 100
)

// Snapshot is a coherent, point-in-time copy of the aggregator's state. It is
// a monitoring surface, not a correctness input, so its fields need not be
// captured atomically with respect to one another.
type Snapshot struct {
	HeartbeatsSent       uint64
	ReconnectAttempts    uint64
	SuccessfulReconnects uint64
	FramesEncoded        uint64
	FramesDropped        uint64
	FramesSent           uint64
	Keyframes            uint64
	BytesEncoded         uint64
	EncodingErrors       uint64
	NetworkErrors        uint64

	CurrentFPS         float64
	CurrentBitrateBps  float64
	AverageJitterMs    float64

	ConnectionStart time.Time
	LastDisconnect  time.Time
}

// DropRate computes frames_dropped / (frames_encoded + frames_dropped), or 0
// when nothing has been observed yet.
func (s Snapshot) DropRate() float64 {
	total := s.FramesEncoded + s.FramesDropped
	if total == 0 {
		return 0
	}
	return float64(s.FramesDropped) / float64(total)
}

// Diagnostics is the concurrency-safe aggregator described in spec §4.2: all
// scalar counters are atomic; FPS/bitrate/jitter windows are guarded by a
// small mutex taken only when a recompute is due, mirroring the teacher's
// StreamMetrics composite-gauge style.
type Diagnostics struct {
	heartbeatsSent       atomic.Uint64
	reconnectAttempts    atomic.Uint64
	successfulReconnects atomic.Uint64
	framesEncoded        atomic.Uint64
	framesDropped        atomic.Uint64
	framesSent           atomic.Uint64
	keyframes            atomic.Uint64
	bytesEncoded         atomic.Uint64
	encodingErrors       atomic.Uint64
	networkErrors        atomic.Uint64

	mu              sync.Mutex
	frameTimes      []time.Time // sliding 1s window for FPS
	byteSamples     []byteSample
	jitterSamples   []float64 // ring of last 100
	jitterIdx       int
	lastFrameTime   time.Time
	currentFPS      float64
	currentBitrate  float64
	lastRateCompute time.Time
	connectionStart time.Time
	lastDisconnect  time.Time
}

type byteSample struct {
	at    time.Time
	bytes uint64
}

// New creates an empty Diagnostics aggregator.
func New() *Diagnostics {
	return &Diagnostics{}
}

// RecordFrameEncoded records one successfully encoded frame of size bytes,
// updates the FPS/bitrate windows, and tracks inter-frame jitter.
func (d *Diagnostics) RecordFrameEncoded(sizeBytes int, isKeyframe bool, at time.Time) {
	d.framesEncoded.Add(1)
	d.bytesEncoded.Add(uint64(sizeBytes))
	if isKeyframe {
		d.keyframes.Add(1)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastFrameTime.IsZero() {
		interval := at.Sub(d.lastFrameTime).Seconds() * 1000
		d.recordJitterLocked(interval)
	}
	d.lastFrameTime = at

	d.frameTimes = append(d.frameTimes, at)
	d.byteSamples = append(d.byteSamples, byteSample{at: at, bytes: uint64(sizeBytes)})
	d.trimWindowsLocked(at)
	d.maybeRecomputeLocked(at)
}

// RecordFrameDropped records a dropped frame (Old or New, per §4.1's
// PushResult taxonomy — both count identically toward frames_dropped).
func (d *Diagnostics) RecordFrameDropped() {
	d.framesDropped.Add(1)
}

// RecordFrameSent records one frame successfully handed to a ChannelClient
// for transmission, satisfying spec §8 invariant 3 (sent_frames <=
// frames_encoded).
func (d *Diagnostics) RecordFrameSent() {
	d.framesSent.Add(1)
}

// RecordHeartbeatSent increments heartbeats_sent.
func (d *Diagnostics) RecordHeartbeatSent() {
	d.heartbeatsSent.Add(1)
}

// RecordReconnectAttempt increments reconnect_attempts.
func (d *Diagnostics) RecordReconnectAttempt() {
	d.reconnectAttempts.Add(1)
}

// RecordSuccessfulReconnect increments successful_reconnects and, if this is
// the first connection, stamps connection_start.
func (d *Diagnostics) RecordSuccessfulReconnect(at time.Time) {
	d.successfulReconnects.Add(1)
	d.mu.Lock()
	if d.connectionStart.IsZero() {
		d.connectionStart = at
	}
	d.mu.Unlock()
}

// RecordDisconnect stamps last_disconnect.
func (d *Diagnostics) RecordDisconnect(at time.Time) {
	d.mu.Lock()
	d.lastDisconnect = at
	d.mu.Unlock()
}

// RecordEncodingError increments encoding_errors.
func (d *Diagnostics) RecordEncodingError() {
	d.encodingErrors.Add(1)
}

// RecordNetworkError increments network_errors.
func (d *Diagnostics) RecordNetworkError() {
	d.networkErrors.Add(1)
}

// recordJitterLocked appends to the 100-sample ring. Caller holds mu.
func (d *Diagnostics) recordJitterLocked(ms float64) {
	if len(d.jitterSamples) < jitterRing {
		d.jitterSamples = append(d.jitterSamples, ms)
		return
	}
	d.jitterSamples[d.jitterIdx%jitterRing] = ms
	d.jitterIdx++
}

// trimWindowsLocked drops frame/byte samples older than the 1s rate window.
// Caller holds mu.
func (d *Diagnostics) trimWindowsLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)

	i := 0
	for ; i < len(d.frameTimes); i++ {
		if d.frameTimes[i].After(cutoff) {
			break
		}
	}
	d.frameTimes = d.frameTimes[i:]

	j := 0
	for ; j < len(d.byteSamples); j++ {
		if d.byteSamples[j].at.After(cutoff) {
			break
		}
	}
	d.byteSamples = d.byteSamples[j:]
}

// maybeRecomputeLocked recomputes FPS/bitrate only when ≥1s has elapsed
// since the last compute; otherwise the previously computed values stand.
// Caller holds mu.
func (d *Diagnostics) maybeRecomputeLocked(now time.Time) {
	if !d.lastRateCompute.IsZero() && now.Sub(d.lastRateCompute) < rateWindow {
		return
	}
	d.currentFPS = float64(len(d.frameTimes))
	var total uint64
	for _, s := range d.byteSamples {
		total += s.bytes
	}
	d.currentBitrate = float64(total) * 8
	d.lastRateCompute = now
}

func (d *Diagnostics) averageJitterLocked() float64 {
	if len(d.jitterSamples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range d.jitterSamples {
		sum += v
	}
	return sum / float64(len(d.jitterSamples))
}

// GetReport returns a full point-in-time snapshot of every counter and
// gauge.
func (d *Diagnostics) GetReport() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		HeartbeatsSent:       d.heartbeatsSent.Load(),
		ReconnectAttempts:    d.reconnectAttempts.Load(),
		SuccessfulReconnects: d.successfulReconnects.Load(),
		FramesEncoded:        d.framesEncoded.Load(),
		FramesDropped:        d.framesDropped.Load(),
		FramesSent:           d.framesSent.Load(),
		Keyframes:            d.keyframes.Load(),
		BytesEncoded:         d.bytesEncoded.Load(),
		EncodingErrors:       d.encodingErrors.Load(),
		NetworkErrors:        d.networkErrors.Load(),
		CurrentFPS:           d.currentFPS,
		CurrentBitrateBps:    d.currentBitrate,
		AverageJitterMs:      d.averageJitterLocked(),
		ConnectionStart:      d.connectionStart,
		LastDisconnect:       d.lastDisconnect,
	}
}

// GetSummary is an alias kept distinct from GetReport per spec §4.2 (both
// are named as separate accessors); in this implementation they return the
// same coherent snapshot.
func (d *Diagnostics) GetSummary() Snapshot {
	return d.GetReport()
}

// Reset returns every counter to zero and clears the rate/jitter windows.
func (d *Diagnostics) Reset() {
	d.heartbeatsSent.Store(0)
	d.reconnectAttempts.Store(0)
	d.successfulReconnects.Store(0)
	d.framesEncoded.Store(0)
	d.framesDropped.Store(0)
	d.framesSent.Store(0)
	d.keyframes.Store(0)
	d.bytesEncoded.Store(0)
	d.encodingErrors.Store(0)
	d.networkErrors.Store(0)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameTimes = nil
	d.byteSamples = nil
	d.jitterSamples = nil
	d.jitterIdx = 0
	d.lastFrameTime = time.Time{}
	d.currentFPS = 0
	d.currentBitrate = 0
	d.lastRateCompute = time.Time{}
	d.connectionStart = time.Time{}
	d.lastDisconnect = time.Time{}
}
