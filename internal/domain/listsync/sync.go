// Package listsync keeps the local list of score records in step with the backend.
//
// Refreshes may overlap. A response is applied only when its refresh started
// after the refresh that produced the current list, so a slow old response can
// never replace a newer one. Failures mark the list degraded but keep it.
package listsync

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/credash/internal/adapters/transport"
	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
	"github.com/okian/credash/pkg/logger"
	"github.com/okian/credash/pkg/metrics"
)

// MessageScoresChanged is the only push message type that triggers a refresh.
const MessageScoresChanged = "scores_changed"

// Source lists the current scores.
type Source interface {
	Scores(ctx context.Context) ([]model.ScoreRecord, error)
}

// Dialer opens the push channel.
type Dialer interface {
	Dial(ctx context.Context) (transport.PushConn, error)
}

// Sync owns the authoritative local list of score records.
type Sync struct {
	source  Source
	fetcher *fetch.Fetcher
	dialer  Dialer
	policy  fetch.Policy
	// dialTimeout bounds one push handshake: the fetcher's per-attempt timeout.
	dialTimeout time.Duration
	sleep       fetch.SleepFunc
	now         func() time.Time
	logger      logger.Logger

	mu         sync.Mutex
	records    map[model.ID]model.ScoreRecord
	status     Status
	lastSynced time.Time
	lastStart  time.Time
	lastErr    error
	push       PushState
	// startSeq orders refreshes by issue time; appliedSeq and statusSeq are the
	// newest refreshes whose records and status are on display.
	startSeq    uint64
	appliedSeq  uint64
	statusSeq   uint64
	pushRunning bool

	updates chan struct{}
	wg      sync.WaitGroup
}

// Option applies a configuration option to the Sync.
type Option func(*Sync)

// WithDialer enables ConnectPush.
func WithDialer(d Dialer) Option {
	return func(s *Sync) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithReconnectPolicy overrides the reconnect schedule (defaults to the fetcher's).
func WithReconnectPolicy(p fetch.Policy) Option {
	return func(s *Sync) {
		s.policy = p
	}
}

// WithSleep replaces the reconnect wait, mainly for tests.
func WithSleep(sleep fetch.SleepFunc) Option {
	return func(s *Sync) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sync) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sync) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Sync reading from source through fetcher.
func New(source Source, fetcher *fetch.Fetcher, opts ...Option) *Sync {
	s := &Sync{
		source:      source,
		fetcher:     fetcher,
		policy:      fetcher.Config().Policy(),
		dialTimeout: fetcher.Config().Timeout,
		sleep:       fetch.Sleep,
		now:         time.Now,
		logger:      logger.Nop(),
		records:     make(map[model.ID]model.ScoreRecord),
		status:      StatusConnecting,
		updates:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Updates signals after every visible state change. Signals coalesce.
func (s *Sync) Updates() <-chan struct{} { return s.updates }

// Wait blocks until background refreshes have returned.
func (s *Sync) Wait() { s.wg.Wait() }

// Snapshot returns a copy of the current state.
func (s *Sync) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]model.ScoreRecord, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ScoreID < recs[j].ScoreID })

	return State{
		Status:               s.status,
		Records:              recs,
		LastSynced:           s.lastSynced,
		LastRefreshStartedAt: s.lastStart,
		LastError:            s.lastErr,
		Push:                 s.push,
	}
}

// Refresh fetches the full list. It returns the fetch error, if any; a
// successful response superseded by a newer one is dropped and returns nil.
func (s *Sync) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.startSeq++
	seq := s.startSeq
	s.lastStart = s.now()
	s.mu.Unlock()

	recs, err := fetch.Do(ctx, s.fetcher, "scores", s.source.Scores)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if fetch.KindOf(err) == fetch.KindCanceled {
			return err
		}
		metrics.RecordRefreshFailed()
		if seq > s.statusSeq {
			s.statusSeq = seq
			s.status = StatusDegraded
			s.lastErr = err
			s.notify()
		}
		s.logger.Warn(ctx, "refresh failed, keeping last known scores",
			logger.Uint64("seq", seq),
			logger.Int("records", len(s.records)),
			logger.Error(err))
		return err
	}

	if seq <= s.appliedSeq {
		metrics.RecordRefreshDiscarded()
		s.logger.Debug(ctx, "discarding out-of-order refresh",
			logger.Uint64("seq", seq),
			logger.Uint64("appliedSeq", s.appliedSeq))
		return nil
	}

	next := make(map[model.ID]model.ScoreRecord, len(recs))
	for _, r := range recs {
		next[r.ScoreID] = r
	}
	s.records = next
	s.appliedSeq = seq
	s.lastSynced = s.now()
	if seq > s.statusSeq {
		s.statusSeq = seq
		s.status = StatusSynced
		s.lastErr = nil
	}
	metrics.RecordRefreshApplied()
	metrics.UpdateRecords(len(next))
	s.notify()
	return nil
}

// pushMessage is the recognized push payload. Type is a pointer so a missing
// field is distinguishable from an empty one.
type pushMessage struct {
	Type *string `json:"type"`
}

// HandleMessage reacts to one push message. Malformed payloads are logged and
// dropped; unknown types are ignored.
func (s *Sync) HandleMessage(ctx context.Context, raw []byte) {
	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == nil {
		metrics.RecordPushMessage("malformed")
		s.logger.Warn(ctx, "ignoring malformed push message",
			logger.Int("bytes", len(raw)),
			logger.Any("decodeError", err))
		return
	}

	switch *msg.Type {
	case MessageScoresChanged:
		metrics.RecordPushMessage(MessageScoresChanged)
		s.RefreshAsync(ctx)
	default:
		metrics.RecordPushMessage("unknown")
		s.logger.Debug(ctx, "ignoring push message", logger.String("type", *msg.Type))
	}
}

// RefreshAsync starts a refresh in the background. Wait joins it.
func (s *Sync) RefreshAsync(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Refresh(ctx)
	}()
}

// Poll refreshes every interval until ctx ends. A non-positive interval returns at once.
func (s *Sync) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

// ConnectPush runs the push channel until ctx ends, reconnecting with backoff.
// Only one loop may run per Sync, so reconnect attempts never overlap.
func (s *Sync) ConnectPush(ctx context.Context) error {
	if s.dialer == nil {
		return ErrNoDialer
	}
	s.mu.Lock()
	if s.pushRunning {
		s.mu.Unlock()
		return ErrPushRunning
	}
	s.pushRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pushRunning = false
		s.mu.Unlock()
		s.setPush(PushDisconnected)
	}()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setPush(PushConnecting)
		conn, err := s.dial(ctx)
		if err == nil {
			s.setPush(PushConnected)
			s.logger.Info(ctx, "push channel connected")
			// notifications may have been missed while disconnected
			s.RefreshAsync(ctx)

			var received bool
			received, err = s.readLoop(ctx, conn)
			if received {
				failures = 0
			}
			err = &fetch.FetchError{Op: "push", Kind: fetch.KindChannelClosed, Attempts: 1, Cause: err}
		}
		s.setPush(PushDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		delay := s.policy.Delay(failures)
		metrics.RecordPushReconnect()
		s.logger.Warn(ctx, "push channel down, reconnecting",
			logger.Int("attempt", failures),
			logger.Duration("delay", delay),
			logger.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// dial opens the push channel, giving up after dialTimeout so a peer that
// accepts but never answers the handshake counts as a failed attempt.
func (s *Sync) dial(ctx context.Context) (transport.PushConn, error) {
	if s.dialTimeout <= 0 {
		return s.dialer.Dial(ctx)
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	conn, err := s.dialer.Dial(dialCtx)
	if err != nil && ctx.Err() == nil && errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
		return nil, &fetch.FetchError{Op: "push_dial", Kind: fetch.KindTimeout, Attempts: 1, Cause: err}
	}
	return conn, err
}

// readLoop feeds messages to HandleMessage until the connection fails.
// received reports whether at least one message arrived.
func (s *Sync) readLoop(ctx context.Context, conn transport.PushConn) (received bool, err error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		raw, err := conn.Receive()
		if err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return received, errors.Join(err, ctx.Err())
			}
			return received, err
		}
		received = true
		s.HandleMessage(ctx, raw)
	}
}

func (s *Sync) setPush(p PushState) {
	s.mu.Lock()
	changed := s.push != p
	s.push = p
	if changed {
		s.notify()
	}
	s.mu.Unlock()
	metrics.UpdatePushConnected(p == PushConnected)
}

// notify must be called with mu held.
func (s *Sync) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
