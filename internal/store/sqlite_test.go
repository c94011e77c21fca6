package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mcp/internal/domain"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func samplePrompt(id string) domain.Artifact {
	return domain.Artifact{
		ID:        id,
		Kind:      domain.KindPrompt,
		Name:      "Code Review Assistant",
		Role:      domain.RoleSystem,
		Content:   "You review code.",
		Tags:      []string{"review", "quality"},
		UpdatedAt: domain.NowUTC(),
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := samplePrompt("prompt_00000001")
	require.NoError(t, s.Insert(ctx, want))

	got, err := s.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(want.UpdatedAt), "updated_at: got %v want %v", got.UpdatedAt, want.UpdatedAt)
	got.UpdatedAt = want.UpdatedAt
	assert.Equal(t, want, got)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "prompt_absent01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateReplacesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := samplePrompt("prompt_00000001")
	require.NoError(t, s.Insert(ctx, a))

	a.Content = "You review Go code."
	a.Tags = nil
	a.UpdatedAt = domain.NowUTC()
	require.NoError(t, s.Update(ctx, a))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "You review Go code.", got.Content)
	assert.Nil(t, got.Tags)
}

func TestUpdateMissing(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(context.Background(), samplePrompt("prompt_absent01"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := samplePrompt("prompt_00000001")
	require.NoError(t, s.Insert(ctx, a))
	require.NoError(t, s.Delete(ctx, a.ID))

	_, err := s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, a.ID), domain.ErrNotFound)
}

func TestListOrdersAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := domain.NowUTC()
	records := []domain.Artifact{
		{ID: "tool_00000001", Kind: domain.KindTool, Name: "slugify", Description: "d", Code: "c", UpdatedAt: now},
		{ID: "prompt_00000002", Kind: domain.KindPrompt, Name: "b", Role: domain.RoleUser, Content: "c", UpdatedAt: now},
		{ID: "prompt_00000001", Kind: domain.KindPrompt, Name: "a", Role: domain.RoleUser, Content: "c", UpdatedAt: now},
	}
	for _, a := range records {
		require.NoError(t, s.Insert(ctx, a))
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "prompt_00000001", all[0].ID)
	assert.Equal(t, "prompt_00000002", all[1].ID)
	assert.Equal(t, "tool_00000001", all[2].ID)

	prompts, err := s.List(ctx, domain.KindPrompt)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	for _, p := range prompts {
		assert.Equal(t, domain.KindPrompt, p.Kind)
	}
}

func TestListEmptyStore(t *testing.T) {
	s := openTestStore(t)

	all, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInsertDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := samplePrompt("prompt_00000001")
	require.NoError(t, s.Insert(ctx, a))
	assert.Error(t, s.Insert(ctx, a))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reuse.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Insert(context.Background(), samplePrompt("prompt_00000001")))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(context.Background(), "prompt_00000001")
	require.NoError(t, err)
	assert.Equal(t, "Code Review Assistant", got.Name)
}
