// Package reconnect implements the client-side reconnection machinery: a
// connection state machine, exponential backoff with jitter, a
// sequence-gap tracker, and a heartbeat monitor.
package reconnect

import (
	"math/rand"
	"sync"
	"time"

	enclave "github.com/jonwraymond/enclavejs"
)

// State is one node of the §4.9 connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// BackoffConfig configures the retry delay schedule (§4.9 defaults).
type BackoffConfig struct {
	MaxRetries   int
	Initial      time.Duration
	Max          time.Duration
	Multiplier   float64
	Jitter       bool
	JitterFactor float64
}

// DefaultBackoffConfig returns the §4.9 defaults:
// maxRetries=5, initial=1000ms, max=30s, multiplier=2, jitter=true, jitterFactor=0.3.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:   5,
		Initial:      1000 * time.Millisecond,
		Max:          30 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		JitterFactor: 0.3,
	}
}

// Delay computes delay = min(maxDelay, initial * multiplier^retryCount),
// optionally perturbed by uniform noise in ±jitterFactor·delay.
func (c BackoffConfig) Delay(retryCount int, rnd *rand.Rand) time.Duration {
	d := float64(c.Initial)
	for i := 0; i < retryCount; i++ {
		d *= c.Multiplier
	}
	if max := float64(c.Max); d > max {
		d = max
	}
	if c.Jitter && d > 0 {
		if rnd == nil {
			rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		spread := d * c.JitterFactor
		d += (rnd.Float64()*2 - 1) * spread
		if d < 0 {
			d = 0
		}
	}
	return time.Duration(d)
}

// Gap is a contiguous range of missed sequence numbers, [From, To] inclusive.
type Gap struct {
	From uint64
	To   uint64
}

// SeqTracker records lastSeq and the gaps observed since, bounded to a
// maximum number of remembered gaps (§4.9 default 100). Duplicate or
// regressing seq values are ignored: at-least-once delivery is tolerated.
type SeqTracker struct {
	mu       sync.Mutex
	lastSeq  uint64
	hasSeen  bool
	gaps     []Gap
	maxGaps  int
}

// NewSeqTracker constructs a tracker. maxGaps <= 0 selects the §4.9 default
// of 100.
func NewSeqTracker(maxGaps int) *SeqTracker {
	if maxGaps <= 0 {
		maxGaps = 100
	}
	return &SeqTracker{maxGaps: maxGaps}
}

// Observe records seq, returning any newly detected gap. A seq equal to or
// below lastSeq is a duplicate/regression and is ignored.
func (t *SeqTracker) Observe(seq uint64) (gap *Gap) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasSeen {
		t.hasSeen = true
		t.lastSeq = seq
		return nil
	}
	if seq <= t.lastSeq {
		return nil
	}
	if seq > t.lastSeq+1 {
		g := Gap{From: t.lastSeq + 1, To: seq - 1}
		t.gaps = append(t.gaps, g)
		if len(t.gaps) > t.maxGaps {
			t.gaps = t.gaps[len(t.gaps)-t.maxGaps:]
		}
		t.lastSeq = seq
		return &g
	}
	t.lastSeq = seq
	return nil
}

// Gaps returns every outstanding gap recorded so far.
func (t *SeqTracker) Gaps() []Gap {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Gap, len(t.gaps))
	copy(out, t.gaps)
	return out
}

// ResolveGap drops a gap once it's been filled by a successful replay.
func (t *SeqTracker) ResolveGap(g Gap) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.gaps {
		if existing == g {
			t.gaps = append(t.gaps[:i], t.gaps[i+1:]...)
			return
		}
	}
}

// LastSeq reports the highest seq observed so far.
func (t *SeqTracker) LastSeq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeq
}

// ReplayBuffer is a bounded, server-side record of recently emitted events,
// used to service replay requests for outstanding gaps (§4.9 default 1000).
type ReplayBuffer struct {
	mu       sync.Mutex
	capacity int
	events   []enclave.StreamEvent
	minSeq   uint64
	hasAny   bool
}

// NewReplayBuffer constructs a buffer. capacity <= 0 selects the §4.9
// default of 1000.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ReplayBuffer{capacity: capacity}
}

// Record appends ev, evicting the oldest entry once capacity is exceeded.
func (b *ReplayBuffer) Record(ev enclave.StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
	b.minSeq = b.events[0].Seq
	b.hasAny = true
}

// Replay returns every buffered event in [from, to], or a
// ErrCodeReplayUnavailable error if any part of the range has already been
// evicted.
func (b *ReplayBuffer) Replay(from, to uint64) ([]enclave.StreamEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasAny || from < b.minSeq {
		return nil, enclave.NewSessionError(enclave.ErrCodeReplayUnavailable,
			"requested gap is older than the buffered window", nil)
	}

	var out []enclave.StreamEvent
	for _, ev := range b.events {
		if ev.Seq >= from && ev.Seq <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

// HeartbeatMonitor fires onTimeout once timeoutMs elapses without a call to
// Reset (§4.9: "Every received event resets the timer").
type HeartbeatMonitor struct {
	mu        sync.Mutex
	timer     *time.Timer
	timeout   time.Duration
	onTimeout func()
	stopped   bool
}

// NewHeartbeatMonitor starts a monitor that calls onTimeout after timeout of
// silence.
func NewHeartbeatMonitor(timeout time.Duration, onTimeout func()) *HeartbeatMonitor {
	m := &HeartbeatMonitor{timeout: timeout, onTimeout: onTimeout}
	m.timer = time.AfterFunc(timeout, m.fire)
	return m
}

func (m *HeartbeatMonitor) fire() {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if !stopped && m.onTimeout != nil {
		m.onTimeout()
	}
}

// Reset restarts the silence timer. Call on every received event.
func (m *HeartbeatMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.timer.Reset(m.timeout)
}

// Stop disables the monitor permanently.
func (m *HeartbeatMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.timer.Stop()
}

// Connection drives the §4.9 connection state machine across reconnect
// attempts, delegating the actual dial to a caller-supplied connect func.
type Connection struct {
	mu      sync.Mutex
	state   State
	backoff BackoffConfig
	retries int
}

// NewConnection constructs a Connection in the Disconnected state.
func NewConnection(backoff BackoffConfig) *Connection {
	return &Connection{state: StateDisconnected, backoff: backoff}
}

// State reports the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect attempts dial once via connect, transitioning Connecting ->
// Connected on success or Connecting -> Reconnecting (retrying with
// backoff) / Failed (retries exhausted) on failure.
func (c *Connection) Connect(connect func() error) error {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	err := connect()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.state = StateConnected
		c.retries = 0
		return nil
	}

	if c.retries >= c.backoff.MaxRetries {
		c.state = StateFailed
		return err
	}
	c.state = StateReconnecting
	c.retries++
	return err
}

// Close transitions to Closed permanently; no further Connect calls are
// valid afterward.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// NextDelay returns the backoff delay for the current retry count.
func (c *Connection) NextDelay(rnd *rand.Rand) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.Delay(c.retries, rnd)
}
