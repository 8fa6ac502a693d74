package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// nullString maps "" to SQL NULL so empty text never masquerades as data.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalPayload serializes a payload pointer for a TEXT column; a nil
// pointer becomes SQL NULL. The argument must be a pointer or nil.
func marshalPayload(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// unmarshalPayload decodes a TEXT column into out when the column was
// non-NULL. out must be a **T; *out stays nil for NULL columns.
func unmarshalPayload[T any](raw *string, out **T) error {
	if raw == nil || *raw == "" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal([]byte(*raw), v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	*out = v
	return nil
}

// inPlaceholders renders "?, ?, ?" for n parameters.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return args
}
