package engine

import "encoding/json"

// Cache values round-trip through JSON so Redis and in-process backends
// share one representation.

func encodeJSON[T any](v *T) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON[T any](raw []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
