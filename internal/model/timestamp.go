package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Timestamp is a UTC instant. It decodes from either an RFC 3339 string or a
// number of seconds since the Unix epoch, since producers send both.
type Timestamp struct {
	time.Time
}

// Now returns the current instant truncated to milliseconds, the precision
// the document store keeps.
func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Millisecond)}
}

// FromUnix converts fractional epoch seconds.
func FromUnix(sec float64) Timestamp {
	whole, frac := math.Modf(sec)
	return Timestamp{time.Unix(int64(whole), int64(frac*1e9)).UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	var sec float64
	if err := json.Unmarshal(b, &sec); err != nil {
		return fmt.Errorf("timestamp: expected RFC 3339 string or epoch seconds: %w", err)
	}
	*t = FromUnix(sec)
	return nil
}

func (t Timestamp) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(t.UTC())
}

func (t *Timestamp) UnmarshalBSONValue(typ bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: typ, Value: data}
	switch typ {
	case bsontype.DateTime:
		t.Time = raw.Time().UTC()
		return nil
	case bsontype.Double:
		*t = FromUnix(raw.Double())
		return nil
	case bsontype.String:
		parsed, err := time.Parse(time.RFC3339Nano, raw.StringValue())
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = parsed.UTC()
		return nil
	case bsontype.Null:
		*t = Timestamp{}
		return nil
	}
	return fmt.Errorf("timestamp: cannot decode bson type %s", typ)
}
