package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a message is not a JSON object.
	ErrMalformed = errors.New("malformed message")
	// ErrMissingType is returned when a message has no usable type.
	ErrMissingType = errors.New("message type missing")
)

// PeekType parses raw only far enough to return its non-empty string
// "type" field.
func PeekType(raw []byte) (string, error) {
	var head struct {
		Type *json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == nil {
		return "", ErrMissingType
	}
	var t string
	if err := json.Unmarshal(*head.Type, &t); err != nil {
		return "", fmt.Errorf("%w: type is not a string", ErrMissingType)
	}
	if t == "" {
		return "", ErrMissingType
	}
	return t, nil
}

// Decode unmarshals raw into a message of family T.
func Decode[T any](raw []byte) (T, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
