package store

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shieldx/shieldx/internal/apperr"
)

// The helpers below let backends without a native document model keep each
// entity as a JSON object and evaluate filters and partial updates on it.

// EncodeDoc marshals doc into its JSON object form.
func EncodeDoc(doc any) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return m, nil
}

// DecodeDoc unmarshals raw JSON into a new T.
func DecodeDoc[T any](raw []byte) (*T, error) {
	var t T
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &t, nil
}

// normalize round-trips v through JSON so Go values compare like stored ones.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Matches reports whether the JSON object doc satisfies every entry of f.
func Matches(doc map[string]any, f Filter) (bool, error) {
	for k, want := range f {
		nw, err := normalize(want)
		if err != nil {
			return false, fmt.Errorf("filter %s: %w", k, err)
		}
		if !reflect.DeepEqual(doc[k], nw) {
			return false, nil
		}
	}
	return true, nil
}

// ApplyFields overwrites doc's top-level fields. The id field is immutable.
func ApplyFields(doc map[string]any, fields map[string]any) error {
	for k, v := range fields {
		if k == "id" || k == "_id" {
			return apperr.Validation("field %q is immutable", k)
		}
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		doc[k] = nv
	}
	return nil
}
