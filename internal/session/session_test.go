package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/profilestore"
)

func newTestSession(t *testing.T) (*Session, *profilestore.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "coheara-session-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := profilestore.New(dir)
	require.NoError(t, err)

	info, phrase, err := store.Create("Quinn", "a-password", nil, nil)
	require.NoError(t, err)
	phrase.Close()

	opened, err := store.Open(info.ID, "a-password")
	require.NoError(t, err)

	return New(opened), store
}

func TestSessionCloseIsIdempotentAndZeroizes(t *testing.T) {
	sess, _ := newTestSession(t)
	_, ok := sess.MasterKey()
	require.True(t, ok)

	sess.Close()
	sess.Close() // must not panic

	_, ok = sess.MasterKey()
	assert.False(t, ok)
	assert.True(t, sess.Closed())
}

func TestCachePutThenGetReturnsSameSession(t *testing.T) {
	sess, _ := newTestSession(t)
	cache := NewCache(CacheConfig{})
	defer cache.Close()

	stored := cache.Put(sess)
	assert.Same(t, sess, stored)

	got, ok := cache.Get(sess.ProfileID())
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheEvictClosesSession(t *testing.T) {
	sess, _ := newTestSession(t)
	cache := NewCache(CacheConfig{})
	defer cache.Close()

	cache.Put(sess)
	cache.Evict(sess.ProfileID())

	_, ok := cache.Get(sess.ProfileID())
	assert.False(t, ok)
	assert.True(t, sess.Closed())
}

func TestCacheIdleSweepEvictsStaleSessions(t *testing.T) {
	sess, _ := newTestSession(t)
	cache := NewCache(CacheConfig{IdleEviction: 20 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	defer cache.Close()

	cache.Put(sess)
	time.Sleep(80 * time.Millisecond)

	_, ok := cache.Get(sess.ProfileID())
	assert.False(t, ok)
	assert.True(t, sess.Closed())
}
