package comlink

import (
	"encoding/json"
	"fmt"
)

// ParseFunc turns a raw message body into the value passed to the handler.
// It must be free of side effects; an error marks the message as failed.
type ParseFunc[T any] func(body string) (T, error)

// SerializeFunc turns a value into a message body. Used by [Producer].
type SerializeFunc[T any] func(v T) (string, error)

// RawBody is the identity ParseFunc.
func RawBody(body string) (string, error) {
	return body, nil
}

// RawString is the identity SerializeFunc.
func RawString(v string) (string, error) {
	return v, nil
}

// JSONParser returns a ParseFunc that decodes JSON bodies into T.
func JSONParser[T any]() ParseFunc[T] {
	return func(body string) (T, error) {
		var v T

		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return v, fmt.Errorf("failed to unmarshal message body: %w", err)
		}

		return v, nil
	}
}

// JSONSerializer returns a SerializeFunc that encodes T as JSON.
func JSONSerializer[T any]() SerializeFunc[T] {
	return func(v T) (string, error) {
		body, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal message body: %w", err)
		}

		return string(body), nil
	}
}
