package bridge

import "github.com/dshills/tonecheck/internal/review"

// Message kinds as they appear in the "type" field.
const (
	KindSelection     = "selection"
	KindReplace       = "replace"
	KindReplaceResult = "replace-result"
	KindGetStorage    = "get-storage"
	KindSetStorage    = "set-storage"
	KindStorageResult = "storage-result"
	KindNotify        = "notify"

	KindReview   = "review"
	KindApply    = "apply"
	KindRevert   = "revert"
	KindDismiss  = "dismiss"
	KindApplyAll = "apply-all"
	KindResults  = "results"
)

// Message is one protocol frame. The set of implementations is closed.
type Message interface {
	Kind() string
	message()
}

// Selection is sent by the host on every selection change and once at startup.
type Selection struct {
	Texts []review.TextUnit `json:"texts"`
}

// Replace asks the host to set a node's text. RequestID correlates the
// eventual ReplaceResult.
type Replace struct {
	NodeID    string `json:"nodeId"`
	NewText   string `json:"newText"`
	RequestID string `json:"requestId,omitempty"`
}

// ReplaceResult reports the outcome of exactly one Replace. Hosts that
// predate correlation tokens leave RequestID empty.
type ReplaceResult struct {
	NodeID    string `json:"nodeId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// GetStorage reads a host key/value entry. The UI sends it to the host;
// the core only decodes it.
type GetStorage struct {
	Key string `json:"key"`
}

// SetStorage writes a host key/value entry. As with GetStorage, the core
// never issues it.
type SetStorage struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StorageResult answers a GetStorage. Value is nil when the key is unset.
type StorageResult struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// Notify shows a transient message to the user.
type Notify struct {
	Message string `json:"message"`
}

// ReviewCommand starts a review round. With no texts the current selection
// is reviewed.
type ReviewCommand struct {
	Texts []review.TextUnit `json:"texts,omitempty"`
}

// ApplyCommand applies one suggestion. A zero Timestamp addresses the
// active result set, otherwise the history entry with that timestamp.
type ApplyCommand struct {
	NodeID    string `json:"nodeId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RevertCommand restores the original text of an applied suggestion.
type RevertCommand struct {
	NodeID    string `json:"nodeId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// DismissCommand hides a suggestion.
type DismissCommand struct {
	NodeID    string `json:"nodeId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ApplyAllCommand applies every eligible active suggestion.
type ApplyAllCommand struct{}

// Results is the state snapshot pushed to the UI after each change.
type Results struct {
	Active    []review.ReviewResult `json:"active"`
	History   []review.HistoryEntry `json:"history"`
	Reviewing bool                  `json:"reviewing"`
	Summary   review.Summary        `json:"summary"`
}

func (Selection) Kind() string       { return KindSelection }
func (Replace) Kind() string         { return KindReplace }
func (ReplaceResult) Kind() string   { return KindReplaceResult }
func (GetStorage) Kind() string      { return KindGetStorage }
func (SetStorage) Kind() string      { return KindSetStorage }
func (StorageResult) Kind() string   { return KindStorageResult }
func (Notify) Kind() string          { return KindNotify }
func (ReviewCommand) Kind() string   { return KindReview }
func (ApplyCommand) Kind() string    { return KindApply }
func (RevertCommand) Kind() string   { return KindRevert }
func (DismissCommand) Kind() string  { return KindDismiss }
func (ApplyAllCommand) Kind() string { return KindApplyAll }
func (Results) Kind() string         { return KindResults }

func (Selection) message()       {}
func (Replace) message()         {}
func (ReplaceResult) message()   {}
func (GetStorage) message()      {}
func (SetStorage) message()      {}
func (StorageResult) message()   {}
func (Notify) message()          {}
func (ReviewCommand) message()   {}
func (ApplyCommand) message()    {}
func (RevertCommand) message()   {}
func (DismissCommand) message()  {}
func (ApplyAllCommand) message() {}
func (Results) message()         {}
