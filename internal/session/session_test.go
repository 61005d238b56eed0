package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tonecheck/internal/bridge"
	"github.com/dshills/tonecheck/internal/review"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []bridge.Message
	err  error
}

func (f *fakeSender) Send(m bridge.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) replaces() []bridge.Replace {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bridge.Replace
	for _, m := range f.sent {
		if r, ok := m.(bridge.Replace); ok {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeSender) notifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if n, ok := m.(bridge.Notify); ok {
			out = append(out, n.Message)
		}
	}
	return out
}

type reviewFunc func(ctx context.Context, units []review.TextUnit) ([]review.ReviewResult, error)

func (f reviewFunc) Review(ctx context.Context, units []review.TextUnit) ([]review.ReviewResult, error) {
	return f(ctx, units)
}

// fixAll suggests "<content>!" for every unit.
func fixAll(_ context.Context, units []review.TextUnit) ([]review.ReviewResult, error) {
	out := make([]review.ReviewResult, len(units))
	for i, u := range units {
		out[i] = review.ReviewResult{NodeID: u.ID, Original: u.Content, Suggestion: u.Content + "!", Reason: "r", ViolationType: "tone"}
	}
	return out, nil
}

type harness struct {
	sess   *Session
	sender *fakeSender
	now    time.Time
	calls  int
}

func newHarness(t *testing.T, reviewer reviewFunc, opts ...Option) *harness {
	t.Helper()
	h := &harness{sender: &fakeSender{}, now: time.UnixMilli(1_700_000_000_000)}
	var ids int
	counted := reviewFunc(func(ctx context.Context, units []review.TextUnit) ([]review.ReviewResult, error) {
		h.calls++
		return reviewer(ctx, units)
	})
	base := []Option{
		WithClock(func() time.Time { return h.now }),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("req-%d", ids) }),
	}
	h.sess = New(h.sender, counted, append(base, opts...)...)
	return h
}

func textUnits(ids ...string) []review.TextUnit {
	out := make([]review.TextUnit, len(ids))
	for i, id := range ids {
		out[i] = review.TextUnit{ID: id, Content: "text-" + id}
	}
	return out
}

func (h *harness) review(t *testing.T, ids ...string) {
	t.Helper()
	_, err := h.sess.Review(context.Background(), textUnits(ids...))
	require.NoError(t, err)
}

func (h *harness) activeResult(t *testing.T, nodeID string) review.ReviewResult {
	t.Helper()
	for _, r := range h.sess.Active() {
		if r.NodeID == nodeID {
			return r
		}
	}
	t.Fatalf("no active result for %s", nodeID)
	return review.ReviewResult{}
}

func (h *harness) historyResult(t *testing.T, ts int64, nodeID string) review.ReviewResult {
	t.Helper()
	for _, e := range h.sess.History() {
		if e.Timestamp != ts {
			continue
		}
		for _, r := range e.Results {
			if r.NodeID == nodeID {
				return r
			}
		}
	}
	t.Fatalf("no history result for %d/%s", ts, nodeID)
	return review.ReviewResult{}
}

func TestReview_EmptyBatchSkipsReviewer(t *testing.T) {
	h := newHarness(t, fixAll)

	got, err := h.sess.Review(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, h.calls)

	_, err = h.sess.BeginReview(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestReview_ResultsStartSuggested(t *testing.T) {
	h := newHarness(t, func(context.Context, []review.TextUnit) ([]review.ReviewResult, error) {
		return []review.ReviewResult{{NodeID: "a", Original: "x", Suggestion: "y", Applied: true, Dismissed: true}}, nil
	})
	h.review(t, "a")

	r := h.activeResult(t, "a")
	assert.False(t, r.Applied)
	assert.False(t, r.Dismissed)
}

func TestReview_SequentialRoundsArchiveOnce(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a", "b")
	assert.Empty(t, h.sess.History())

	h.review(t, "a", "b")
	history := h.sess.History()
	require.Len(t, history, 1)
	assert.Len(t, history[0].Results, 2)
	assert.Equal(t, h.now.UnixMilli(), history[0].Timestamp)

	// Same clock reading: the next entry still gets a strictly larger key.
	h.review(t, "c")
	history = h.sess.History()
	require.Len(t, history, 2)
	assert.Greater(t, history[0].Timestamp, history[1].Timestamp)
}

func TestReview_FailureLeavesActiveEmpty(t *testing.T) {
	boom := errors.New("completion service returned 502")
	fail := false
	h := newHarness(t, func(ctx context.Context, units []review.TextUnit) ([]review.ReviewResult, error) {
		if fail {
			return nil, boom
		}
		return fixAll(ctx, units)
	})
	h.review(t, "a")

	fail = true
	_, err := h.sess.Review(context.Background(), textUnits("a"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.sess.Active())
	assert.Len(t, h.sess.History(), 1, "prior round is archived before the call")
	assert.False(t, h.sess.Reviewing())
	assert.Equal(t, []string{"검토 실패: " + boom.Error()}, h.sender.notifications())
}

func TestReview_StaleRoundDiscarded(t *testing.T) {
	h := newHarness(t, fixAll)
	h.sess.Select(textUnits("a"))

	round, err := h.sess.BeginReview(textUnits("a"))
	require.NoError(t, err)
	assert.True(t, h.sess.Reviewing())

	h.sess.Select(textUnits("b"))
	results, _ := fixAll(context.Background(), round.Units)
	err = h.sess.FinishReview(round, results, nil)

	assert.ErrorIs(t, err, ErrStaleRound)
	assert.Empty(t, h.sess.Active(), "stale results must not land on the new selection")
	assert.False(t, h.sess.Reviewing())
}

func TestReview_InFlightRejected(t *testing.T) {
	h := newHarness(t, fixAll)
	_, err := h.sess.BeginReview(textUnits("a"))
	require.NoError(t, err)
	_, err = h.sess.BeginReview(textUnits("a"))
	assert.ErrorIs(t, err, ErrReviewInFlight)
}

func TestSelect_ArchivesOnlyOnChange(t *testing.T) {
	h := newHarness(t, fixAll)
	assert.True(t, h.sess.Select(textUnits("a")))
	h.review(t, "a")

	assert.False(t, h.sess.Select(textUnits("a")))
	assert.Len(t, h.sess.Active(), 1)
	assert.Empty(t, h.sess.History())

	assert.True(t, h.sess.Select(textUnits("b")))
	assert.Empty(t, h.sess.Active())
	assert.Len(t, h.sess.History(), 1)
}

func TestArchiveActiveRound_EmptyIsNoop(t *testing.T) {
	h := newHarness(t, fixAll)
	_, ok := h.sess.ArchiveActiveRound()
	assert.False(t, ok)
	assert.Empty(t, h.sess.History())
}

func TestApply_WaitsForCompletion(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")

	id, err := h.sess.Apply(Active, "a")
	require.NoError(t, err)
	assert.Equal(t, []bridge.Replace{{NodeID: "a", NewText: "text-a!", RequestID: id}}, h.sender.replaces())
	assert.False(t, h.activeResult(t, "a").Applied, "no optimistic mutation")

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true, RequestID: id})
	assert.True(t, h.activeResult(t, "a").Applied)
	assert.Empty(t, h.sess.Pending())
}

func TestApply_PassNotEligible(t *testing.T) {
	h := newHarness(t, func(context.Context, []review.TextUnit) ([]review.ReviewResult, error) {
		return []review.ReviewResult{{NodeID: "a", Original: "같음 ", Suggestion: "같음"}}, nil
	})
	h.review(t, "a")

	_, err := h.sess.Apply(Active, "a")
	assert.ErrorIs(t, err, ErrNotEligible)
	_, err = h.sess.Revert(Active, "a")
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Empty(t, h.sender.replaces())
}

func TestApply_NotFound(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")

	_, err := h.sess.Apply(Active, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.sess.Apply(History(42), "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApply_SendFailureLeavesNothingPending(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")
	h.sender.err = errors.New("pipe closed")

	_, err := h.sess.Apply(Active, "a")
	assert.Error(t, err)
	assert.Empty(t, h.sess.Pending())
}

func TestRevert_RequiresApplied(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")
	_, err := h.sess.Revert(Active, "a")
	assert.ErrorIs(t, err, ErrNotApplied)
}

func TestRevert_ActiveTokenlessCompletion(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "A")
	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "A", Success: true})
	require.True(t, h.activeResult(t, "A").Applied)

	_, err := h.sess.Revert(Active, "A")
	require.NoError(t, err)
	last := h.sender.replaces()[0]
	assert.Equal(t, "text-A", last.NewText, "revert restores the original")
	require.Len(t, h.sess.Pending(), 1)

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "A", Success: true})
	assert.False(t, h.activeResult(t, "A").Applied)
	assert.Empty(t, h.sess.Pending(), "key must not dangle")
}

func TestRevert_HistoryByRequestID(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")
	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})
	entry, ok := h.sess.ArchiveActiveRound()
	require.True(t, ok)
	h.review(t, "a")

	id, err := h.sess.Revert(History(entry.Timestamp), "a")
	require.NoError(t, err)
	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true, RequestID: id})

	assert.False(t, h.historyResult(t, entry.Timestamp, "a").Applied)
	assert.False(t, h.activeResult(t, "a").Applied)
}

func TestRevert_ConcurrentHistoryRevertsResolveInOrder(t *testing.T) {
	h := newHarness(t, fixAll)
	var stamps []int64
	for i := 0; i < 2; i++ {
		h.review(t, "a")
		h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})
		entry, ok := h.sess.ArchiveActiveRound()
		require.True(t, ok)
		stamps = append(stamps, entry.Timestamp)
	}

	// Revert the newer entry first, then the older one.
	_, err := h.sess.Revert(History(stamps[1]), "a")
	require.NoError(t, err)
	_, err = h.sess.Revert(History(stamps[0]), "a")
	require.NoError(t, err)

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})
	assert.False(t, h.historyResult(t, stamps[1], "a").Applied, "first registered revert resolves first")
	assert.True(t, h.historyResult(t, stamps[0], "a").Applied)

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})
	assert.False(t, h.historyResult(t, stamps[0], "a").Applied)
	assert.Empty(t, h.sess.Pending())
}

func TestHandleReplaceResult_TokenlessFailureDropsAllForNode(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a", "b")
	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})
	entry, _ := h.sess.ArchiveActiveRound()
	h.review(t, "a", "b")
	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})

	_, err := h.sess.Revert(Active, "a")
	require.NoError(t, err)
	_, err = h.sess.Revert(History(entry.Timestamp), "a")
	require.NoError(t, err)
	_, err = h.sess.Apply(Active, "b")
	require.NoError(t, err)

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: false, Error: "Node not found"})

	pending := h.sess.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].NodeID)
	assert.True(t, h.activeResult(t, "a").Applied, "failures never mutate results")
	assert.True(t, h.historyResult(t, entry.Timestamp, "a").Applied)
	assert.Equal(t, []string{"텍스트 교체 실패: Node not found"}, h.sender.notifications())
}

func TestHandleReplaceResult_FailureWithRequestID(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")
	first, err := h.sess.Apply(Active, "a")
	require.NoError(t, err)
	_, err = h.sess.Apply(Active, "a")
	require.NoError(t, err)

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", RequestID: first})
	assert.Len(t, h.sess.Pending(), 1, "only the failed request is dropped")
	assert.False(t, h.activeResult(t, "a").Applied)
	assert.Equal(t, []string{"텍스트 교체 실패: 알 수 없는 오류"}, h.sender.notifications())
}

func TestHandleReplaceResult_UnknownRequestID(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true, RequestID: "gone"})
	assert.False(t, h.activeResult(t, "a").Applied, "a token never fans out")

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", RequestID: "gone", Error: "boom"})
	assert.Equal(t, []string{"텍스트 교체 실패: boom"}, h.sender.notifications())
}

func TestHandleReplaceResult_UnsolicitedFanOut(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a", "b")
	entry, _ := h.sess.ArchiveActiveRound()
	h.review(t, "a")

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})

	assert.True(t, h.activeResult(t, "a").Applied)
	assert.True(t, h.historyResult(t, entry.Timestamp, "a").Applied)
	assert.False(t, h.historyResult(t, entry.Timestamp, "b").Applied)
}

func TestHandleReplaceResult_FanOutSkipsPassResults(t *testing.T) {
	passing := false
	h := newHarness(t, func(ctx context.Context, units []review.TextUnit) ([]review.ReviewResult, error) {
		if passing {
			return []review.ReviewResult{{NodeID: "a", Original: "text-a", Suggestion: "text-a"}}, nil
		}
		return fixAll(ctx, units)
	})
	h.review(t, "a")
	entry, _ := h.sess.ArchiveActiveRound()
	passing = true
	h.review(t, "a")

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})

	assert.True(t, h.historyResult(t, entry.Timestamp, "a").Applied)
	assert.False(t, h.activeResult(t, "a").Applied)
	assert.Equal(t, 0, review.ComputeSummary(h.sess.Active()).Applied)
}

func TestHandleReplaceResult_TokenlessApplyResolvesOnlyItsOwner(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")
	entry, _ := h.sess.ArchiveActiveRound()
	h.review(t, "a")

	_, err := h.sess.Apply(Active, "a")
	require.NoError(t, err)
	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true})

	assert.True(t, h.activeResult(t, "a").Applied)
	assert.False(t, h.historyResult(t, entry.Timestamp, "a").Applied)
}

func TestArchive_RehomesPendingOperations(t *testing.T) {
	h := newHarness(t, fixAll)
	h.sess.Select(textUnits("a"))
	h.review(t, "a")
	id, err := h.sess.Apply(Active, "a")
	require.NoError(t, err)

	h.sess.Select(textUnits("b"))
	history := h.sess.History()
	require.Len(t, history, 1)
	pending := h.sess.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, History(history[0].Timestamp), pending[0].Owner)

	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "a", Success: true, RequestID: id})
	assert.True(t, h.historyResult(t, history[0].Timestamp, "a").Applied)
}

func TestDismiss_Idempotent(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a", "b")

	require.NoError(t, h.sess.Dismiss(Active, "a"))
	require.NoError(t, h.sess.Dismiss(Active, "a"))

	active := h.sess.Active()
	assert.Len(t, active, 2, "no duplicate records")
	assert.True(t, h.activeResult(t, "a").Dismissed)
	assert.Empty(t, h.sender.sent, "dismiss is local")

	entry, _ := h.sess.ArchiveActiveRound()
	require.NoError(t, h.sess.Dismiss(History(entry.Timestamp), "b"))
	assert.True(t, h.historyResult(t, entry.Timestamp, "b").Dismissed)
}

func TestApplyAll_OnlyEligible(t *testing.T) {
	h := newHarness(t, func(context.Context, []review.TextUnit) ([]review.ReviewResult, error) {
		return []review.ReviewResult{
			{NodeID: "fix", Original: "a", Suggestion: "b"},
			{NodeID: "pass", Original: "a", Suggestion: " a "},
			{NodeID: "applied", Original: "a", Suggestion: "c"},
			{NodeID: "dismissed", Original: "a", Suggestion: "d"},
			{NodeID: "fix2", Original: "a", Suggestion: "e"},
		}, nil
	})
	h.review(t, "x")
	h.sess.HandleReplaceResult(bridge.ReplaceResult{NodeID: "applied", Success: true})
	require.NoError(t, h.sess.Dismiss(Active, "dismissed"))

	n, err := h.sess.ApplyAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var nodes []string
	for _, r := range h.sender.replaces() {
		nodes = append(nodes, r.NodeID)
	}
	assert.Equal(t, []string{"fix", "fix2"}, nodes)
	assert.Len(t, h.sess.Pending(), 2)
}

func TestSweepPending(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a", "b")
	_, err := h.sess.Apply(Active, "a")
	require.NoError(t, err)
	h.now = h.now.Add(90 * time.Second)
	_, err = h.sess.Apply(Active, "b")
	require.NoError(t, err)

	assert.Empty(t, h.sess.SweepPending(h.now, 0), "non-positive ttl disables sweeping")

	expired := h.sess.SweepPending(h.now.Add(40*time.Second), 2*time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, "a", expired[0].NodeID)
	require.Len(t, h.sess.Pending(), 1)
	assert.Equal(t, "b", h.sess.Pending()[0].NodeID)
}

func TestWithHistory_SortsNewestFirst(t *testing.T) {
	seed := []review.HistoryEntry{
		{Timestamp: 10, Results: []review.ReviewResult{{NodeID: "old"}}},
		{Timestamp: 30, Results: []review.ReviewResult{{NodeID: "new"}}},
		{Timestamp: 20},
	}
	h := newHarness(t, fixAll, WithHistory(seed))

	history := h.sess.History()
	require.Len(t, history, 3)
	assert.Equal(t, []int64{30, 20, 10}, []int64{history[0].Timestamp, history[1].Timestamp, history[2].Timestamp})

	seed[1].Results[0].Applied = true
	assert.False(t, h.sess.History()[0].Results[0].Applied, "seed is copied")
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	h := newHarness(t, fixAll)
	h.review(t, "a")
	snap := h.sess.Snapshot()
	snap.Active[0].Applied = true
	assert.False(t, h.activeResult(t, "a").Applied)
}

func TestResultsMessage(t *testing.T) {
	h := newHarness(t, fixAll)
	msg := h.sess.ResultsMessage()
	assert.NotNil(t, msg.Active)
	assert.Empty(t, msg.Active)

	h.review(t, "a", "b")
	msg = h.sess.ResultsMessage()
	assert.Equal(t, review.Summary{Total: 2, Fixes: 2}, msg.Summary)
}

func TestOwner(t *testing.T) {
	assert.True(t, Active.IsActive())
	assert.False(t, History(5).IsActive())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "history:5", History(5).String())
}
