package review

import (
	stderrors "errors"
	"testing"
	"time"

	"resumereview/internal/config"
	"resumereview/internal/document"
	"resumereview/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSessionNotFound = errors.NewNotFoundError(errors.ErrCodeSessionNotFound, "", nil)

func testDoc(t *testing.T) document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(resumeJSON))
	require.NoError(t, err)
	return doc
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore(config.ReviewConfig{SessionTTL: time.Hour}, nil)
	defer store.Close()

	s := store.Create(testDoc(t))
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	assert.True(t, store.Delete(s.ID()))
	assert.False(t, store.Delete(s.ID()))

	_, err = store.Get(s.ID())
	assert.True(t, stderrors.Is(err, errSessionNotFound))
}

func TestStoreFlattenOptions(t *testing.T) {
	store := NewStore(config.ReviewConfig{MinFragmentLength: 10, ExcludedKeyMarker: "name"}, nil)
	defer store.Close()

	s := store.Create(testDoc(t))
	assert.Equal(t, []string{"Managed budget", "Managed budget", "Senior Engineer"}, s.Bullets())
	assert.Equal(t, 10, store.FlattenOptions().MinLength)
}

func TestStoreCleanup(t *testing.T) {
	store := NewStore(config.ReviewConfig{SessionTTL: time.Hour}, nil)
	defer store.Close()

	idle := store.Create(testDoc(t))
	store.Create(testDoc(t))

	assert.Zero(t, store.cleanup(time.Now()))
	assert.Equal(t, 2, store.cleanup(time.Now().Add(2*time.Hour)))
	assert.Zero(t, store.Len())

	_, err := store.Get(idle.ID())
	assert.Error(t, err)
}

func TestStoreExpiredSessionIsNotReturned(t *testing.T) {
	store := NewStore(config.ReviewConfig{SessionTTL: time.Millisecond}, nil)
	defer store.Close()

	s := store.Create(testDoc(t))
	time.Sleep(10 * time.Millisecond)

	_, err := store.Get(s.ID())
	assert.True(t, stderrors.Is(err, errSessionNotFound))
}

func TestStoreCleanupRoutine(t *testing.T) {
	store := NewStore(config.ReviewConfig{
		SessionTTL:      5 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	}, nil)
	defer store.Close()

	store.Create(testDoc(t))
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewStore(config.ReviewConfig{MaxSessions: 2}, nil)
	defer store.Close()

	first := store.Create(testDoc(t))
	time.Sleep(2 * time.Millisecond)
	second := store.Create(testDoc(t))
	time.Sleep(2 * time.Millisecond)

	_, err := store.Get(first.ID())
	require.NoError(t, err)

	third := store.Create(testDoc(t))
	assert.Equal(t, 2, store.Len())

	_, err = store.Get(second.ID())
	assert.Error(t, err)
	_, err = store.Get(first.ID())
	assert.NoError(t, err)
	_, err = store.Get(third.ID())
	assert.NoError(t, err)

	stats := store.GetStats()
	assert.Equal(t, 2, stats["active_sessions"])
	assert.Equal(t, 2, stats["max_sessions"])
}

func TestStoreCloseIsIdempotent(t *testing.T) {
	store := NewStore(config.ReviewConfig{SessionTTL: time.Minute, CleanupInterval: time.Minute}, nil)
	store.Close()
	assert.NotPanics(t, store.Close)
}
