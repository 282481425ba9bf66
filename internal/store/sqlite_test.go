package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/betterme/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertUserByEmailKeepsID(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.UpsertUserByEmail(ctx, "Ana", "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", first.Email)
	assert.NotEmpty(t, first.UserID)

	second, err := s.UpsertUserByEmail(ctx, "Ana B", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, "Ana B", second.Name)

	got, err := s.GetUser(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ana B", got.Name)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordActivityMergesOptionalFields(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordActivity(ctx, &domain.Activity{
		UserID: "u1", Email: "u1@example.com", Focus: "career", NeedLabel: "Interview prep", LastActiveAt: t0,
	}))
	require.NoError(t, s.RecordActivity(ctx, &domain.Activity{UserID: "u1", LastActiveAt: t0.Add(time.Hour)}))

	list, err := s.ListActivity(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	a := list[0]
	assert.Equal(t, "u1@example.com", a.Email)
	assert.Equal(t, "career", a.Focus)
	assert.Equal(t, "Interview prep", a.NeedLabel)
	assert.Equal(t, t0.Add(time.Hour), a.LastActiveAt)
	assert.Nil(t, a.LastCheckinEmailAt)
}

func TestMarkCheckinSent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)

	assert.ErrorIs(t, s.MarkCheckinSent(ctx, "nobody", now), ErrNotFound)

	require.NoError(t, s.RecordActivity(ctx, &domain.Activity{UserID: "u1", LastActiveAt: now}))
	require.NoError(t, s.MarkCheckinSent(ctx, "u1", now))

	list, err := s.ListActivity(ctx)
	require.NoError(t, err)
	require.NotNil(t, list[0].LastCheckinEmailAt)
	assert.Equal(t, now, *list[0].LastCheckinEmailAt)
}

func TestPing(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}
