package id_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
)

func TestParse(t *testing.T) {
	v, err := id.Parse("661f8d933e3a2eac62cce7ad")
	require.NoError(t, err)
	assert.Equal(t, "661f8d933e3a2eac62cce7ad", v.String())
	assert.False(t, v.IsZero())

	for _, bad := range []string{"", "xyz", "661f8d933e3a2eac62cce7a", "661f8d933e3a2eac62cce7adzz"} {
		_, err := id.Parse(bad)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "input %q", bad)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := id.New().String()
		assert.Len(t, s, 24)
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestJSON(t *testing.T) {
	type doc struct {
		ID id.EntityID `json:"id"`
	}
	in := doc{ID: id.MustParse("66200e847a824ad0dbb622e1")}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"66200e847a824ad0dbb622e1"}`, string(b))

	var out doc
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in.ID, out.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":""}`), &out))
	assert.True(t, out.ID.IsZero())

	err = json.Unmarshal([]byte(`{"id":"nope"}`), &out)
	assert.Error(t, err)
}

func TestParseAll(t *testing.T) {
	ids, err := id.ParseAll([]string{"661f9124aa3deebd71eaaa99", "661f913faa3deebd71eaaabc"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = id.ParseAll([]string{"661f9124aa3deebd71eaaa99", "bad"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
