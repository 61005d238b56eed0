package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/tonecheck/internal/bridge"
	"github.com/dshills/tonecheck/internal/review"
)

var (
	// ErrEmptyBatch is returned when a review is started with no units.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrNotFound means the owner or node does not exist.
	ErrNotFound = errors.New("result not found")
	// ErrNotEligible means the result is a pass and cannot be applied or
	// reverted.
	ErrNotEligible = errors.New("result has no suggested change")
	// ErrNotApplied means a revert was requested for an unapplied result.
	ErrNotApplied = errors.New("result is not applied")
	// ErrStaleRound means a review finished after its round was superseded.
	ErrStaleRound = errors.New("stale review round")
	// ErrReviewInFlight means a review is already running.
	ErrReviewInFlight = errors.New("review already in progress")
)

// Sender delivers messages to the host.
type Sender interface {
	Send(bridge.Message) error
}

// Reviewer runs one review round. *review.Engine satisfies it.
type Reviewer interface {
	Review(ctx context.Context, units []review.TextUnit) ([]review.ReviewResult, error)
}

// Owner identifies the collection a result lives in: the active set, or
// the history entry with the given timestamp.
type Owner struct {
	Timestamp int64
}

// Active is the owner of the current round's results.
var Active = Owner{}

// History returns the owner for the history entry with timestamp ts.
func History(ts int64) Owner { return Owner{Timestamp: ts} }

// IsActive reports whether o is the active set.
func (o Owner) IsActive() bool { return o.Timestamp == 0 }

func (o Owner) String() string {
	if o.IsActive() {
		return "active"
	}
	return "history:" + strconv.FormatInt(o.Timestamp, 10)
}

// Round identifies one started review.
type Round struct {
	Generation uint64
	Units      []review.TextUnit
}

// Snapshot is a deep copy of session state.
type Snapshot struct {
	Active    []review.ReviewResult
	History   []review.HistoryEntry
	Reviewing bool
	Pending   int
}

// Session is the review-session state machine. It owns the selection, the
// active result set, the history log and the pending-operation registry.
// A Session is not safe for concurrent use; Runner serialises access.
type Session struct {
	sender   Sender
	reviewer Reviewer
	log      *zap.Logger
	now      func() time.Time
	newID    func() string

	selection  []review.TextUnit
	active     []review.ReviewResult
	history    []review.HistoryEntry // newest first
	generation uint64
	reviewing  bool
	pending    *registry
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// WithHistory seeds the history log, e.g. from the store.
func WithHistory(entries []review.HistoryEntry) Option {
	return func(s *Session) {
		s.history = make([]review.HistoryEntry, len(entries))
		for i, e := range entries {
			s.history[i] = e.Clone()
		}
		slices.SortFunc(s.history, func(a, b review.HistoryEntry) int {
			return cmp.Compare(b.Timestamp, a.Timestamp)
		})
	}
}

// New creates a Session that sends host requests through sender and runs
// reviews with reviewer.
func New(sender Sender, reviewer Reviewer, opts ...Option) *Session {
	s := &Session{
		sender:   sender,
		reviewer: reviewer,
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    newRequestID,
		pending:  newRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Select records a new host selection. When the set of unit ids differs
// from the previous selection the active round is archived and any review
// in flight becomes stale. It reports whether the selection changed.
func (s *Session) Select(units []review.TextUnit) bool {
	changed := !sameIDs(s.selection, units)
	s.selection = slices.Clone(units)
	if !changed {
		return false
	}
	s.ArchiveActiveRound()
	if s.reviewing {
		s.log.Debug("selection changed during review", zap.Uint64("generation", s.generation))
	}
	s.generation++
	s.reviewing = false
	return true
}

// Selection returns the current selection.
func (s *Session) Selection() []review.TextUnit {
	return slices.Clone(s.selection)
}

// ArchiveActiveRound moves a non-empty active set into history. The new
// entry's timestamp is strictly greater than every existing one. Pending
// operations on the active set follow their results into the entry.
func (s *Session) ArchiveActiveRound() (review.HistoryEntry, bool) {
	if len(s.active) == 0 {
		return review.HistoryEntry{}, false
	}
	ts := max(s.now().UnixMilli(), 1)
	if len(s.history) > 0 && ts <= s.history[0].Timestamp {
		ts = s.history[0].Timestamp + 1
	}

	entry := review.HistoryEntry{Timestamp: ts, Results: s.active}
	s.history = slices.Insert(s.history, 0, entry)
	s.active = nil

	moved := s.pending.rehome(Active, History(ts))
	s.log.Debug("archived active round",
		zap.Int64("timestamp", ts),
		zap.Int("results", len(entry.Results)),
		zap.Int("pending_moved", moved))
	return entry.Clone(), true
}

// BeginReview starts a round for units: the active set is archived and the
// round generation advances.
func (s *Session) BeginReview(units []review.TextUnit) (Round, error) {
	if len(units) == 0 {
		return Round{}, ErrEmptyBatch
	}
	if s.reviewing {
		return Round{}, ErrReviewInFlight
	}
	s.ArchiveActiveRound()
	s.generation++
	s.reviewing = true
	return Round{Generation: s.generation, Units: slices.Clone(units)}, nil
}

// FinishReview completes a round started with BeginReview. A superseded
// round is discarded with ErrStaleRound. On failure the active set stays
// empty, the user is notified once and reviewErr is returned.
func (s *Session) FinishReview(round Round, results []review.ReviewResult, reviewErr error) error {
	if round.Generation != s.generation {
		s.log.Debug("discarding stale review",
			zap.Uint64("round", round.Generation),
			zap.Uint64("current", s.generation))
		return ErrStaleRound
	}
	s.reviewing = false

	if reviewErr != nil {
		s.active = nil
		s.log.Warn("review failed", zap.Error(reviewErr))
		s.notify("검토 실패: " + reviewErr.Error())
		return reviewErr
	}

	active := make([]review.ReviewResult, len(results))
	for i, r := range results {
		r.Applied = false
		r.Dismissed = false
		active[i] = r
	}
	s.active = active
	return nil
}

// Review runs a full round synchronously. An empty batch returns an empty
// result without calling the reviewer.
func (s *Session) Review(ctx context.Context, units []review.TextUnit) ([]review.ReviewResult, error) {
	if len(units) == 0 {
		return []review.ReviewResult{}, nil
	}
	round, err := s.BeginReview(units)
	if err != nil {
		return nil, err
	}
	results, reviewErr := s.reviewer.Review(ctx, round.Units)
	if err := s.FinishReview(round, results, reviewErr); err != nil {
		return nil, err
	}
	return s.Active(), nil
}

// Apply asks the host to replace the node's text with the suggestion. The
// result is only marked applied once the host confirms. It returns the
// request id of the replace request.
func (s *Session) Apply(owner Owner, nodeID string) (string, error) {
	r, err := s.find(owner, nodeID)
	if err != nil {
		return "", err
	}
	if r.IsPass() {
		return "", fmt.Errorf("apply %s: %w", nodeID, ErrNotEligible)
	}
	return s.dispatch(OpApply, owner, nodeID, r.Suggestion)
}

// Revert asks the host to restore the node's original text.
func (s *Session) Revert(owner Owner, nodeID string) (string, error) {
	r, err := s.find(owner, nodeID)
	if err != nil {
		return "", err
	}
	if r.IsPass() {
		return "", fmt.Errorf("revert %s: %w", nodeID, ErrNotEligible)
	}
	if !r.Applied {
		return "", fmt.Errorf("revert %s: %w", nodeID, ErrNotApplied)
	}
	return s.dispatch(OpRevert, owner, nodeID, r.Original)
}

// Dismiss hides a result. It is local and idempotent.
func (s *Session) Dismiss(owner Owner, nodeID string) error {
	r, err := s.find(owner, nodeID)
	if err != nil {
		return err
	}
	r.Dismissed = true
	return nil
}

// ApplyAll issues one Apply for every active result that has a change and
// is neither applied nor dismissed. Requests are not sequenced. It returns
// the number of requests sent.
func (s *Session) ApplyAll() (int, error) {
	var targets []string
	for _, r := range s.active {
		if !r.IsPass() && !r.Applied && !r.Dismissed {
			targets = append(targets, r.NodeID)
		}
	}

	var sent int
	var errs []error
	for _, nodeID := range targets {
		if _, err := s.Apply(Active, nodeID); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *Session) dispatch(kind OpKind, owner Owner, nodeID, text string) (string, error) {
	op := Operation{
		RequestID: s.newID(),
		Kind:      kind,
		Owner:     owner,
		NodeID:    nodeID,
		Text:      text,
		Created:   s.now(),
	}
	s.pending.add(op)
	if err := s.sender.Send(bridge.Replace{NodeID: nodeID, NewText: text, RequestID: op.RequestID}); err != nil {
		s.pending.take(op.RequestID)
		return "", fmt.Errorf("%s %s: %w", kind, nodeID, err)
	}
	s.log.Debug("replace requested",
		zap.String("op", kind.String()),
		zap.Stringer("owner", owner),
		zap.String("node", nodeID),
		zap.String("request_id", op.RequestID))
	return op.RequestID, nil
}

// HandleReplaceResult reconciles a host completion signal. A signal with a
// known request id resolves exactly that operation. A signal without one is
// matched by node: failures drop every pending operation for the node;
// successes resolve the active-set revert, then the oldest history revert,
// then the oldest apply, and only when nothing is pending mark every result
// for the node applied.
func (s *Session) HandleReplaceResult(msg bridge.ReplaceResult) {
	if msg.RequestID != "" {
		op, ok := s.pending.take(msg.RequestID)
		if !ok {
			s.log.Warn("completion for unknown request",
				zap.String("request_id", msg.RequestID),
				zap.String("node", msg.NodeID))
			if !msg.Success {
				s.notifyReplaceFailure(msg)
			}
			return
		}
		s.resolve(op, msg)
		return
	}

	if !msg.Success {
		dropped := s.pending.drop(forNode(msg.NodeID))
		s.log.Debug("dropped pending operations after failure",
			zap.String("node", msg.NodeID),
			zap.Int("dropped", len(dropped)))
		s.notifyReplaceFailure(msg)
		return
	}

	matchers := []func(Operation) bool{
		func(op Operation) bool { return op.Kind == OpRevert && op.Owner.IsActive() && op.NodeID == msg.NodeID },
		func(op Operation) bool { return op.Kind == OpRevert && !op.Owner.IsActive() && op.NodeID == msg.NodeID },
		func(op Operation) bool { return op.Kind == OpApply && op.NodeID == msg.NodeID },
	}
	for _, match := range matchers {
		if op, ok := s.pending.takeOldest(match); ok {
			s.resolve(op, msg)
			return
		}
	}

	n := s.markAppliedEverywhere(msg.NodeID)
	s.log.Debug("unsolicited apply completion", zap.String("node", msg.NodeID), zap.Int("results", n))
}

func (s *Session) resolve(op Operation, msg bridge.ReplaceResult) {
	if !msg.Success {
		s.notifyReplaceFailure(msg)
		return
	}
	r, err := s.find(op.Owner, op.NodeID)
	if err != nil {
		s.log.Warn("completion target no longer exists",
			zap.Stringer("owner", op.Owner),
			zap.String("node", op.NodeID))
		return
	}
	r.Applied = op.Kind == OpApply
}

// markAppliedEverywhere marks every fix for nodeID applied, in the active
// set and in history. Pass results are left alone.
func (s *Session) markAppliedEverywhere(nodeID string) int {
	mark := func(results []review.ReviewResult) int {
		var n int
		for i := range results {
			if results[i].NodeID == nodeID && !results[i].IsPass() {
				results[i].Applied = true
				n++
			}
		}
		return n
	}
	n := mark(s.active)
	for h := range s.history {
		n += mark(s.history[h].Results)
	}
	return n
}

// SweepPending drops operations registered more than ttl before now and
// returns them. A non-positive ttl disables sweeping.
func (s *Session) SweepPending(now time.Time, ttl time.Duration) []Operation {
	if ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-ttl)
	expired := s.pending.drop(func(op Operation) bool { return op.Created.Before(cutoff) })
	for _, op := range expired {
		s.log.Warn("replace request expired without completion",
			zap.String("request_id", op.RequestID),
			zap.String("op", op.Kind.String()),
			zap.Stringer("owner", op.Owner),
			zap.String("node", op.NodeID))
	}
	return expired
}

// Pending returns in-flight operations in registration order.
func (s *Session) Pending() []Operation {
	return s.pending.list()
}

// Active returns a copy of the active result set.
func (s *Session) Active() []review.ReviewResult {
	return review.CloneResults(s.active)
}

// History returns a deep copy of the history log, newest first.
func (s *Session) History() []review.HistoryEntry {
	out := make([]review.HistoryEntry, len(s.history))
	for i, e := range s.history {
		out[i] = e.Clone()
	}
	return out
}

// Reviewing reports whether a review round is in flight.
func (s *Session) Reviewing() bool { return s.reviewing }

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Active:    s.Active(),
		History:   s.History(),
		Reviewing: s.reviewing,
		Pending:   s.pending.len(),
	}
}

// ResultsMessage renders the state pushed to the UI.
func (s *Session) ResultsMessage() bridge.Results {
	active := s.Active()
	if active == nil {
		active = []review.ReviewResult{}
	}
	return bridge.Results{
		Active:    active,
		History:   s.History(),
		Reviewing: s.reviewing,
		Summary:   review.ComputeSummary(active),
	}
}

func (s *Session) find(owner Owner, nodeID string) (*review.ReviewResult, error) {
	results := s.active
	if !owner.IsActive() {
		i := slices.IndexFunc(s.history, func(e review.HistoryEntry) bool { return e.Timestamp == owner.Timestamp })
		if i < 0 {
			return nil, fmt.Errorf("%s: %w", owner, ErrNotFound)
		}
		results = s.history[i].Results
	}
	for i := range results {
		if results[i].NodeID == nodeID {
			return &results[i], nil
		}
	}
	return nil, fmt.Errorf("%s node %s: %w", owner, nodeID, ErrNotFound)
}

func (s *Session) notify(message string) {
	if err := s.sender.Send(bridge.Notify{Message: message}); err != nil {
		s.log.Warn("sending notification", zap.Error(err))
	}
}

func (s *Session) notifyReplaceFailure(msg bridge.ReplaceResult) {
	reason := msg.Error
	if reason == "" {
		reason = "알 수 없는 오류"
	}
	s.log.Info("replace failed", zap.String("node", msg.NodeID), zap.String("error", reason))
	s.notify("텍스트 교체 실패: " + reason)
}

func sameIDs(a, b []review.TextUnit) bool {
	return slices.EqualFunc(a, b, func(x, y review.TextUnit) bool { return x.ID == y.ID })
}
