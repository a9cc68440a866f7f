// Package id provides the opaque identifier shared by every stored entity.
//
// Identifiers are 12-byte ObjectIDs rendered as 24 hex characters, the same
// format the document store generates. Parsing happens once at the boundary;
// everything past it handles already-validated values.
package id

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shieldx/shieldx/internal/apperr"
)

// EntityID identifies an entity. The zero value means "not assigned".
type EntityID struct {
	oid primitive.ObjectID
}

// New returns a freshly generated identifier.
func New() EntityID {
	return EntityID{oid: primitive.NewObjectID()}
}

// Parse validates s and returns the identifier it encodes.
// A malformed value is a validation error, distinct from "not found".
func Parse(s string) (EntityID, error) {
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return EntityID{}, apperr.Validation("invalid id %q", s)
	}
	return EntityID{oid: oid}, nil
}

// MustParse is Parse for tests and constants; it panics on bad input.
func MustParse(s string) EntityID {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseAll parses every element of ss, failing on the first bad value.
func ParseAll(ss []string) ([]EntityID, error) {
	out := make([]EntityID, 0, len(ss))
	for _, s := range ss {
		v, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e EntityID) String() string {
	if e.IsZero() {
		return ""
	}
	return e.oid.Hex()
}

// IsZero reports whether e was never assigned.
func (e EntityID) IsZero() bool { return e.oid.IsZero() }

// ObjectID exposes the underlying value for the document store backend.
func (e EntityID) ObjectID() primitive.ObjectID { return e.oid }

// FromObjectID wraps a value read back from the document store.
func FromObjectID(oid primitive.ObjectID) EntityID { return EntityID{oid: oid} }

func (e EntityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *EntityID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if s == "" {
		*e = EntityID{}
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// MarshalBSONValue stores the identifier as a native ObjectID.
func (e EntityID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(e.oid)
}

func (e *EntityID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.ObjectID:
		var oid primitive.ObjectID
		if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&oid); err != nil {
			return err
		}
		e.oid = oid
		return nil
	case bsontype.String:
		var s string
		if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&s); err != nil {
			return err
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*e = v
		return nil
	case bsontype.Null, bsontype.Undefined:
		*e = EntityID{}
		return nil
	}
	return fmt.Errorf("id: cannot decode bson type %s", t)
}
