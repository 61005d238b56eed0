package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingType means a frame had no "type" discriminator.
	ErrMissingType = errors.New("message has no type")
	// ErrUnknownType means the discriminator names no known message.
	ErrUnknownType = errors.New("unknown message type")
)

var decoders = map[string]func([]byte) (Message, error){
	KindSelection:     decodeAs[Selection],
	KindReplace:       decodeAs[Replace],
	KindReplaceResult: decodeAs[ReplaceResult],
	KindGetStorage:    decodeAs[GetStorage],
	KindSetStorage:    decodeAs[SetStorage],
	KindStorageResult: decodeAs[StorageResult],
	KindNotify:        decodeAs[Notify],
	KindReview:        decodeAs[ReviewCommand],
	KindApply:         decodeAs[ApplyCommand],
	KindRevert:        decodeAs[RevertCommand],
	KindDismiss:       decodeAs[DismissCommand],
	KindApplyAll:      decodeAs[ApplyAllCommand],
	KindResults:       decodeAs[Results],
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode renders m as a single JSON object with its type discriminator
// first.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Kind(), err)
	}
	kind, err := json.Marshal(m.Kind())
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.Grow(len(body) + len(kind) + 10)
	b.WriteString(`{"type":`)
	b.Write(kind)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		b.WriteByte(',')
		b.Write(inner)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Decode parses one frame. Unknown fields are ignored; an absent or unknown
// type is an error.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if head.Type == nil || *head.Type == "" {
		return nil, ErrMissingType
	}
	decode, ok := decoders[*head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *head.Type)
	}
	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", *head.Type, err)
	}
	return m, nil
}
