package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shieldx/shieldx/internal/apperr"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"validation", apperr.Validation("bad %s", "input"), apperr.KindValidation},
		{"not found", apperr.NotFound("event type %q not found", "Ghost"), apperr.KindNotFound},
		{"conflict", apperr.Conflict("trigger exists"), apperr.KindConflict},
		{"repository", apperr.Repository("insert", errors.New("disk full")), apperr.KindRepository},
		{"transport", apperr.Transport("dial", errors.New("refused")), apperr.KindTransport},
		{"wrapped", fmt.Errorf("create: %w", apperr.NotFound("x")), apperr.KindNotFound},
		{"plain", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, apperr.KindOf(tc.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := apperr.Repository("events.insert", cause)
	assert.Equal(t, "events.insert: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "event type 'Ghost' not found", apperr.NotFound("event type '%s' not found", "Ghost").Error())
	assert.True(t, apperr.Is(err, apperr.KindRepository))
	assert.False(t, apperr.Is(nil, apperr.KindRepository))
}
