// Package poller keeps a deployment's status and log snapshot in sync with
// the platform while the deployment is building.
//
// A Poller is attached to one deployment at a time. Attach triggers an
// immediate fetch-cycle; while the fetched status is QUEUED or IN_PROGRESS a
// repeating timer runs another fetch-cycle every interval. The first READY or
// FAIL result disarms the timer. Detach disarms it unconditionally, and any
// fetch-cycle still in flight is cancelled and its result discarded.
//
// Every fetch-cycle carries a sequence number. A result is only applied if
// it belongs to the current attachment and is newer than the last applied
// result, so a slow response can never overwrite a fresher one.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jvreagan/shipyard/pkg/clock"
	"github.com/jvreagan/shipyard/pkg/logging"
	"github.com/jvreagan/shipyard/pkg/types"
)

// DefaultInterval is the delay between fetch-cycles while a deployment is
// building.
const DefaultInterval = 7000 * time.Millisecond

// State is the poller's lifecycle position.
type State int

const (
	// Idle: not attached, waiting for the first result, or the first
	// fetch-cycle failed.
	Idle State = iota
	// Polling: the repeating timer is armed.
	Polling
	// Stopped: the deployment reached a stable status and the timer is
	// disarmed.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Fetcher retrieves a deployment and its full log list in one request.
// *client.Client satisfies it.
type Fetcher interface {
	DeploymentLogs(ctx context.Context, id string) (*types.DeploymentLogs, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string) (*types.DeploymentLogs, error)

// DeploymentLogs implements Fetcher.
func (f FetcherFunc) DeploymentLogs(ctx context.Context, id string) (*types.DeploymentLogs, error) {
	return f(ctx, id)
}

// errNotFound is recorded when the platform answers without a deployment.
var errNotFound = errors.New("Deployment not found")

// Snapshot is a copy of the poller's exposed state.
type Snapshot struct {
	DeploymentID string
	Deployment   *types.Deployment
	Logs         []types.LogEntry
	Loading      bool
	Err          string
	State        State
	Armed        bool
}

// Poller is the per-view status synchronization state machine. It is safe
// for concurrent use.
type Poller struct {
	fetcher  Fetcher
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	onUpdate func(Snapshot)

	mu         sync.Mutex
	id         string
	attached   bool
	generation uint64
	cancel     context.CancelFunc
	ctx        context.Context

	timer *clock.Timer
	armID uint64
	armed bool
	state State

	nextSeq    uint64
	appliedSeq uint64

	deployment *types.Deployment
	logs       []types.LogEntry
	loading    bool
	errMsg     string

	inflight sync.WaitGroup
}

// Option customises a Poller.
type Option func(*Poller)

// WithClock replaces the real clock, typically with clock.Fake in tests.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger for cycle records.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithUpdateFunc registers fn to receive a snapshot after every state
// change. fn runs without the poller's lock held and may call accessors.
func WithUpdateFunc(fn func(Snapshot)) Option {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// New returns an idle Poller.
func New(fetcher Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		clock:    clock.Real(),
		interval: DefaultInterval,
		logger:   logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidID reports whether id can be used in a request path.
func ValidID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.ContainsAny(id, "/?#")
}

// Attach starts managing deployment id and returns without waiting for the
// first fetch-cycle. Invalid ids are ignored. Attaching to the id that is
// already being polled is a no-op; attaching to a different id detaches
// first and clears the held model.
func (p *Poller) Attach(ctx context.Context, id string) {
	if !ValidID(id) {
		p.logger.Debug("ignoring attach with invalid deployment id", "deployment", id)
		return
	}

	p.mu.Lock()
	if p.attached && p.id == id && (p.state == Polling || p.loading) {
		p.mu.Unlock()
		return
	}
	if p.attached {
		p.detachLocked()
	}
	if p.id != id {
		p.deployment = nil
		p.logs = nil
		p.errMsg = ""
		p.appliedSeq = 0
	}

	p.id = id
	p.attached = true
	p.generation++
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.state = Idle
	p.loading = true
	p.startCycleLocked()
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Debug("poller attached", "deployment", id)
	p.notify(snap)
}

// Detach disarms the timer and cancels in-flight fetch-cycles. Results
// that arrive afterwards are discarded. The held deployment, logs and
// error are left as they were.
func (p *Poller) Detach() {
	p.mu.Lock()
	if !p.attached {
		p.mu.Unlock()
		return
	}
	p.detachLocked()
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Debug("poller detached", "deployment", snap.DeploymentID)
	p.notify(snap)
}

func (p *Poller) detachLocked() {
	p.disarmLocked()
	p.generation++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.attached = false
	p.loading = false
	p.state = Idle
}

// Wait blocks until every fetch-cycle started so far has returned.
func (p *Poller) Wait() {
	p.inflight.Wait()
}

// startCycleLocked launches one fetch-cycle for the current attachment.
func (p *Poller) startCycleLocked() {
	p.nextSeq++
	seq, gen, id, ctx := p.nextSeq, p.generation, p.id, p.ctx

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.cycle(ctx, id, gen, seq)
	}()
}

func (p *Poller) cycle(ctx context.Context, id string, gen, seq uint64) {
	start := p.clock.Now()
	result, err := p.fetcher.DeploymentLogs(ctx, id)
	if err == nil && (result == nil || result.Deployment == nil) {
		err = errNotFound
	}

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		p.logger.Debug("discarding result for detached poller", "deployment", id, "seq", seq)
		return
	}
	if seq < p.appliedSeq {
		p.mu.Unlock()
		p.logger.Debug("discarding stale result", "deployment", id, "seq", seq)
		return
	}
	p.appliedSeq = seq
	p.loading = false

	if err != nil {
		p.errMsg = err.Error()
		if p.errMsg == "" {
			p.errMsg = "Request failed"
		}
		p.logger.Debug("fetch-cycle failed",
			"deployment", id, "seq", seq, "duration", p.clock.Now().Sub(start),
			"error", logging.SanitizeString(p.errMsg))
	} else {
		d := *result.Deployment
		p.deployment = &d
		p.logs = append([]types.LogEntry(nil), result.Logs...)
		p.errMsg = ""
		p.reevaluateLocked(d.Status)
		p.logger.Debug("fetch-cycle applied",
			"deployment", id, "seq", seq, "status", d.Status,
			"logs", len(p.logs), "duration", p.clock.Now().Sub(start))
	}
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.notify(snap)
}

// reevaluateLocked arms the timer for a building deployment and disarms it
// for any other status.
func (p *Poller) reevaluateLocked(status types.DeploymentStatus) {
	if status.IsActive() {
		p.armLocked()
		p.state = Polling
		return
	}
	p.disarmLocked()
	p.state = Stopped
}

// armLocked is a no-op when a timer is already armed.
func (p *Poller) armLocked() {
	if p.armed {
		return
	}
	p.armID++
	armID := p.armID
	p.armed = true
	p.timer = p.clock.AfterFunc(p.interval, func() { p.tick(armID) })
}

func (p *Poller) disarmLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.armed = false
}

// tick runs when the timer fires. It starts a fetch-cycle and re-arms.
func (p *Poller) tick(armID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.armed || armID != p.armID || !p.attached {
		return
	}
	p.startCycleLocked()
	p.timer.Reset(p.interval)
}

func (p *Poller) notify(s Snapshot) {
	if p.onUpdate != nil {
		p.onUpdate(s)
	}
}

func (p *Poller) snapshotLocked() Snapshot {
	s := Snapshot{
		DeploymentID: p.id,
		Loading:      p.loading,
		Err:          p.errMsg,
		State:        p.state,
		Armed:        p.armed,
	}
	if p.deployment != nil {
		d := *p.deployment
		s.Deployment = &d
	}
	if p.logs != nil {
		s.Logs = append([]types.LogEntry(nil), p.logs...)
	}
	return s
}

// Snapshot returns a copy of the exposed state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Deployment returns the last applied deployment, or nil before the first
// successful fetch-cycle.
func (p *Poller) Deployment() *types.Deployment {
	return p.Snapshot().Deployment
}

// Logs returns the last applied log list in the order received.
func (p *Poller) Logs() []types.LogEntry {
	return p.Snapshot().Logs
}

// Loading reports whether the first result for the current attachment is
// still outstanding.
func (p *Poller) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the message of the last failed fetch-cycle, or "" after a
// success.
func (p *Poller) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errMsg
}

// State returns the lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Armed reports whether the repeating timer is armed.
func (p *Poller) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}
