package stats

import (
	"sync"
	"time"

	mstats "github.com/montanaflynn/stats"
)

// Snapshot is a point-in-time view of a connection's health, returned by
// Conn.Stats().
type Snapshot struct {
	// StreamCount is the number of currently open streams.
	StreamCount int
	// BytesSent and BytesRecv are cumulative counts of gRPC-framed message
	// bytes, each message's 5-byte length prefix included; HTTP/2 frame
	// headers are not counted.
	BytesSent int64
	BytesRecv int64
	// KeepaliveRTT holds the p50/p90/p99 of observed PING/PONG round-trip
	// latencies. Zero-valued until at least one sample is recorded.
	KeepaliveRTT Percentiles
}

// Percentiles holds a latency distribution's 50th, 90th and 99th
// percentiles, in the same unit the samples were recorded in.
type Percentiles struct {
	P50 time.Duration
	P90 time.Duration
	P99 time.Duration
}

// LatencyRecorder accumulates latency samples (keepalive round-trips, or any
// other per-operation timing a caller wants percentiles for) and computes
// percentiles on demand via github.com/montanaflynn/stats, rather than
// maintaining a running histogram.
type LatencyRecorder struct {
	mu        sync.Mutex
	samples   []float64 // nanoseconds
	maxSample int

	streamCount int
	bytesSent   int64
	bytesRecv   int64
}

// defaultMaxSamples bounds memory use; old samples are dropped FIFO once
// the recorder is full, favoring recent latency over unbounded history.
const defaultMaxSamples = 4096

// NewLatencyRecorder returns an empty LatencyRecorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{maxSample: defaultMaxSamples}
}

// Observe records one latency sample.
func (r *LatencyRecorder) Observe(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) >= r.maxSample {
		r.samples = r.samples[1:]
	}
	r.samples = append(r.samples, float64(d))
}

// SetStreamCount records the current number of open streams for the next
// Snapshot.
func (r *LatencyRecorder) SetStreamCount(n int) {
	r.mu.Lock()
	r.streamCount = n
	r.mu.Unlock()
}

// AddBytesSent and AddBytesRecv accumulate payload byte counters.
func (r *LatencyRecorder) AddBytesSent(n int64) {
	r.mu.Lock()
	r.bytesSent += n
	r.mu.Unlock()
}

func (r *LatencyRecorder) AddBytesRecv(n int64) {
	r.mu.Lock()
	r.bytesRecv += n
	r.mu.Unlock()
}

// Percentiles computes the recorded samples' p50/p90/p99. It returns the
// zero value if no samples have been observed yet.
func (r *LatencyRecorder) Percentiles() Percentiles {
	r.mu.Lock()
	samples := make([]float64, len(r.samples))
	copy(samples, r.samples)
	r.mu.Unlock()

	if len(samples) == 0 {
		return Percentiles{}
	}

	p50, _ := mstats.Percentile(samples, 50)
	p90, _ := mstats.Percentile(samples, 90)
	p99, _ := mstats.Percentile(samples, 99)
	return Percentiles{
		P50: time.Duration(p50),
		P90: time.Duration(p90),
		P99: time.Duration(p99),
	}
}

// Snapshot returns the current connection-health snapshot.
func (r *LatencyRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	streamCount := r.streamCount
	bytesSent := r.bytesSent
	bytesRecv := r.bytesRecv
	r.mu.Unlock()

	return Snapshot{
		StreamCount:  streamCount,
		BytesSent:    bytesSent,
		BytesRecv:    bytesRecv,
		KeepaliveRTT: r.Percentiles(),
	}
}
