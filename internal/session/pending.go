package session

import (
	"cmp"
	"slices"
	"time"
)

// OpKind distinguishes the two replace requests the session issues.
type OpKind int

const (
	OpApply OpKind = iota + 1
	OpRevert
)

func (k OpKind) String() string {
	switch k {
	case OpApply:
		return "apply"
	case OpRevert:
		return "revert"
	default:
		return "unknown"
	}
}

// Operation is one replace request awaiting its completion signal.
type Operation struct {
	RequestID string
	Kind      OpKind
	Owner     Owner
	NodeID    string
	Text      string
	Created   time.Time

	seq uint64
}

// registry holds in-flight operations keyed by request id. Registration
// order gives a total order used when a completion carries no request id.
type registry struct {
	ops map[string]*Operation
	seq uint64
}

func newRegistry() *registry {
	return &registry{ops: make(map[string]*Operation)}
}

func (r *registry) add(op Operation) {
	r.seq++
	op.seq = r.seq
	r.ops[op.RequestID] = &op
}

func (r *registry) take(requestID string) (Operation, bool) {
	op, ok := r.ops[requestID]
	if !ok {
		return Operation{}, false
	}
	delete(r.ops, requestID)
	return *op, true
}

// takeOldest removes and returns the earliest registered operation that
// satisfies match.
func (r *registry) takeOldest(match func(Operation) bool) (Operation, bool) {
	var best *Operation
	for _, op := range r.ops {
		if !match(*op) {
			continue
		}
		if best == nil || op.seq < best.seq {
			best = op
		}
	}
	if best == nil {
		return Operation{}, false
	}
	delete(r.ops, best.RequestID)
	return *best, true
}

// drop removes every operation that satisfies match.
func (r *registry) drop(match func(Operation) bool) []Operation {
	var out []Operation
	for id, op := range r.ops {
		if match(*op) {
			out = append(out, *op)
			delete(r.ops, id)
		}
	}
	sortBySeq(out)
	return out
}

// rehome moves operations owned by from onto to and reports how many moved.
func (r *registry) rehome(from, to Owner) int {
	var n int
	for _, op := range r.ops {
		if op.Owner == from {
			op.Owner = to
			n++
		}
	}
	return n
}

func (r *registry) list() []Operation {
	out := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, *op)
	}
	sortBySeq(out)
	return out
}

func (r *registry) len() int { return len(r.ops) }

func sortBySeq(ops []Operation) {
	slices.SortFunc(ops, func(a, b Operation) int { return cmp.Compare(a.seq, b.seq) })
}

func forNode(nodeID string) func(Operation) bool {
	return func(op Operation) bool { return op.NodeID == nodeID }
}
