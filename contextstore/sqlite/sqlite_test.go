package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilldock/skilldock/contextstore"
	"github.com/skilldock/skilldock/core"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "context.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestWriteLoadDelete(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	rec := contextstore.Record{
		SkillID:   "weather",
		Key:       "last_city",
		Value:     core.Text("Berlin"),
		UpdatedAt: now,
	}
	require.NoError(t, b.Write(ctx, rec))

	records, err := b.LoadAll(ctx, "weather")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "last_city", records[0].Key)
	assert.True(t, core.ValueEqual(core.Text("Berlin"), records[0].Value))
	assert.True(t, records[0].ExpiresAt.IsZero(), "no TTL should load as zero expiry")
	assert.Equal(t, now, records[0].UpdatedAt)

	require.NoError(t, b.Delete(ctx, "weather", "last_city"))
	records, err = b.LoadAll(ctx, "weather")
	require.NoError(t, err)
	assert.Empty(t, records)

	// Deleting an absent record is not an error.
	assert.NoError(t, b.Delete(ctx, "weather", "last_city"))
}

func TestWriteOverwrites(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	first := contextstore.Record{SkillID: "sk", Key: "k", Value: core.Int(1), UpdatedAt: now}
	require.NoError(t, b.Write(ctx, first))

	second := contextstore.Record{
		SkillID:   "sk",
		Key:       "k",
		Value:     core.Int(2),
		ExpiresAt: now.Add(time.Hour),
		UpdatedAt: now.Add(time.Minute),
	}
	require.NoError(t, b.Write(ctx, second))

	records, err := b.LoadAll(ctx, "sk")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, core.ValueEqual(core.Int(2), records[0].Value))
	assert.Equal(t, now.Add(time.Hour), records[0].ExpiresAt)
}

func TestSkillIsolation(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, b.Write(ctx, contextstore.Record{SkillID: "a", Key: "k", Value: core.Text("av"), UpdatedAt: now}))
	require.NoError(t, b.Write(ctx, contextstore.Record{SkillID: "b", Key: "k", Value: core.Text("bv"), UpdatedAt: now}))

	records, err := b.LoadAll(ctx, "a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, core.ValueEqual(core.Text("av"), records[0].Value))
}

func TestValueKindsSurviveRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	now := time.Now().UTC()

	payload := core.Map(map[string]core.Value{
		"null":  core.Null(),
		"bool":  core.Bool(true),
		"int":   core.Int(-7),
		"float": core.Float(2.5),
		"text":  core.Text("hi"),
		"list":  core.List(core.Int(1), core.Text("two")),
	})
	require.NoError(t, b.Write(ctx, contextstore.Record{SkillID: "sk", Key: "k", Value: payload, UpdatedAt: now}))

	records, err := b.LoadAll(ctx, "sk")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, core.ValueEqual(payload, records[0].Value))
}

func TestReopenSeesData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "context.db")
	ctx := context.Background()

	b1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, b1.Write(ctx, contextstore.Record{SkillID: "sk", Key: "k", Value: core.Text("v"), UpdatedAt: time.Now().UTC()}))
	require.NoError(t, b1.Close())

	b2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = b2.Close() }()

	records, err := b2.LoadAll(ctx, "sk")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, core.ValueEqual(core.Text("v"), records[0].Value))
}
