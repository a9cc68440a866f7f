package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
	"github.com/shieldx/shieldx/internal/store/memstore"
	"github.com/shieldx/shieldx/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return memstore.New() })
}

func TestInsertDuplicateID(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tr := &model.Trigger{Name: "a"}
	_, err := s.Triggers().Insert(ctx, tr)
	require.NoError(t, err)

	_, err = s.Triggers().Insert(ctx, &model.Trigger{ID: tr.ID, Name: "b"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestUpdateRejectsID(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	tid, err := s.Triggers().Insert(ctx, &model.Trigger{Name: "a"})
	require.NoError(t, err)

	_, err = s.Triggers().Update(ctx, tid, map[string]any{"id": "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCanceledContext(t *testing.T) {
	s := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Events().FindAll(ctx, nil, store.Page{})
	storetest.AssertRepositoryError(t, err)
	_, err = s.Relations(store.TriggerRules).ListByA(ctx, model.Trigger{}.ID)
	storetest.AssertRepositoryError(t, err)
	assert.Error(t, s.Ping(ctx))
}
