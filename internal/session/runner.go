package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/tonecheck/internal/bridge"
	"github.com/dshills/tonecheck/internal/review"
)

// DefaultSweepInterval is how often the runner expires stale operations.
const DefaultSweepInterval = 10 * time.Second

// Transport is a bidirectional frame stream. *bridge.Conn satisfies it.
type Transport interface {
	Receive() (bridge.Message, error)
	Send(bridge.Message) error
}

// Runner drives a Session from a Transport. All session mutations happen
// on the goroutine that called Run, one event at a time.
type Runner struct {
	sess       *Session
	conn       Transport
	log        *zap.Logger
	sweepEvery time.Duration
	pendingTTL time.Duration
	onChange   func(Snapshot)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithPendingTTL expires replace requests that see no completion within
// ttl, checking every interval. A non-positive ttl disables expiry.
func WithPendingTTL(ttl, interval time.Duration) RunnerOption {
	return func(r *Runner) {
		r.pendingTTL = ttl
		if interval > 0 {
			r.sweepEvery = interval
		}
	}
}

// WithChangeHook registers fn to run after every state change.
func WithChangeHook(fn func(Snapshot)) RunnerOption {
	return func(r *Runner) { r.onChange = fn }
}

// NewRunner creates a Runner for sess over conn.
func NewRunner(sess *Session, conn Transport, opts ...RunnerOption) *Runner {
	r := &Runner{
		sess:       sess,
		conn:       conn,
		log:        zap.NewNop(),
		sweepEvery: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type reviewDone struct {
	round   Round
	results []review.ReviewResult
	err     error
}

// Run processes events until the input ends (nil error), ctx is cancelled
// or the transport fails. In-flight reviews are cancelled and every
// goroutine started by Run has exited when it returns.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		if c, ok := r.conn.(io.Closer); ok {
			c.Close()
		}
		wg.Wait()
	}()

	inbox := make(chan bridge.Message)
	readErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.readLoop(ctx, inbox, readErr)
	}()

	done := make(chan reviewDone)
	var sweep <-chan time.Time
	if r.pendingTTL > 0 {
		ticker := time.NewTicker(r.sweepEvery)
		defer ticker.Stop()
		sweep = ticker.C
	}

	r.emit()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				r.log.Info("input closed")
				return nil
			}
			return err

		case msg := <-inbox:
			if r.handle(ctx, &wg, done, msg) {
				r.emit()
			}

		case d := <-done:
			err := r.sess.FinishReview(d.round, d.results, d.err)
			switch {
			case errors.Is(err, ErrStaleRound):
				continue
			case err != nil:
				r.log.Warn("review round failed", zap.Uint64("generation", d.round.Generation), zap.Error(err))
			default:
				r.log.Info("review round complete",
					zap.Uint64("generation", d.round.Generation),
					zap.Int("results", len(d.results)))
			}
			r.emit()

		case now := <-sweep:
			if expired := r.sess.SweepPending(now, r.pendingTTL); len(expired) > 0 {
				r.emit()
			}
		}
	}
}

func (r *Runner) readLoop(ctx context.Context, inbox chan<- bridge.Message, readErr chan<- error) {
	for {
		msg, err := r.conn.Receive()
		if err != nil {
			var fe *bridge.FrameError
			if errors.As(err, &fe) {
				r.log.Warn("skipping frame", zap.Error(err))
				continue
			}
			readErr <- err
			return
		}
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handle applies one inbound message and reports whether state changed.
func (r *Runner) handle(ctx context.Context, wg *sync.WaitGroup, done chan<- reviewDone, msg bridge.Message) bool {
	switch m := msg.(type) {
	case bridge.Selection:
		return r.sess.Select(m.Texts)

	case bridge.ReviewCommand:
		units := m.Texts
		if len(units) == 0 {
			units = r.sess.Selection()
		}
		round, err := r.sess.BeginReview(units)
		if err != nil {
			r.log.Info("review not started", zap.Error(err))
			if errors.Is(err, ErrEmptyBatch) {
				r.sess.notify("검토할 텍스트를 선택해주세요")
			}
			return false
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := r.sess.reviewer.Review(ctx, round.Units)
			select {
			case done <- reviewDone{round: round, results: results, err: err}:
			case <-ctx.Done():
			}
		}()
		return true

	case bridge.ApplyCommand:
		return r.logged("apply", m.NodeID, func() error {
			_, err := r.sess.Apply(Owner{Timestamp: m.Timestamp}, m.NodeID)
			return err
		})

	case bridge.RevertCommand:
		return r.logged("revert", m.NodeID, func() error {
			_, err := r.sess.Revert(Owner{Timestamp: m.Timestamp}, m.NodeID)
			return err
		})

	case bridge.DismissCommand:
		return r.logged("dismiss", m.NodeID, func() error {
			return r.sess.Dismiss(Owner{Timestamp: m.Timestamp}, m.NodeID)
		})

	case bridge.ApplyAllCommand:
		n, err := r.sess.ApplyAll()
		if err != nil {
			r.log.Warn("apply all", zap.Int("sent", n), zap.Error(err))
		}
		return n > 0

	case bridge.ReplaceResult:
		r.sess.HandleReplaceResult(m)
		return true

	case bridge.StorageResult:
		r.log.Debug("ignoring storage result", zap.String("key", m.Key))
		return false

	default:
		r.log.Warn("unexpected inbound message", zap.String("type", msg.Kind()))
		return false
	}
}

func (r *Runner) logged(op, nodeID string, fn func() error) bool {
	if err := fn(); err != nil {
		r.log.Warn("command rejected", zap.String("op", op), zap.String("node", nodeID), zap.Error(err))
		return false
	}
	return true
}

func (r *Runner) emit() {
	if err := r.conn.Send(r.sess.ResultsMessage()); err != nil {
		r.log.Warn("sending results", zap.Error(err))
	}
	if r.onChange != nil {
		r.onChange(r.sess.Snapshot())
	}
}
