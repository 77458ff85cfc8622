package profilestore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/cryptoutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "coheara-profilestore-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	store, err := New(dir)
	require.NoError(t, err)
	return store
}

func TestCreateOpenRoundTrip(t *testing.T) {
	store := newTestStore(t)

	info, phrase, err := store.Create("Alex", "correct horse battery staple", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, info)
	defer phrase.Close()

	opened, err := store.Open(info.ID, "correct horse battery staple")
	require.NoError(t, err)
	defer opened.MasterKey.Close()
	assert.Equal(t, info.ID, opened.Info.ID)
}

func TestOpenWrongPasswordFails(t *testing.T) {
	store := newTestStore(t)
	info, phrase, err := store.Create("Sam", "s3cret-password", nil, nil)
	require.NoError(t, err)
	phrase.Close()

	_, err = store.Open(info.ID, "not the password")
	require.ErrorIs(t, err, coherr.ErrWrongPassword)
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	store := newTestStore(t)
	_, phrase1, err := store.Create("Robin", "password-one", nil, nil)
	require.NoError(t, err)
	phrase1.Close()

	_, _, err = store.Create("Robin", "password-two", nil, nil)
	require.ErrorIs(t, err, coherr.ErrProfileExists)
}

func TestRecoverWithPhraseRestoresMasterKey(t *testing.T) {
	store := newTestStore(t)
	info, phrase, err := store.Create("Jamie", "first-password", nil, nil)
	require.NoError(t, err)
	defer phrase.Close()

	opened, err := store.Open(info.ID, "first-password")
	require.NoError(t, err)
	originalBytes := *opened.MasterKey.Bytes()
	opened.MasterKey.Close()

	recovered, err := store.Recover(info.ID, phrase.String())
	require.NoError(t, err)
	defer recovered.MasterKey.Close()
	assert.Equal(t, originalBytes, *recovered.MasterKey.Bytes())
}

func TestRecoverWithWrongPhraseFails(t *testing.T) {
	store := newTestStore(t)
	info, phrase, err := store.Create("Morgan", "a-password", nil, nil)
	require.NoError(t, err)
	phrase.Close()

	otherPhrase, err := cryptoutil.GenerateRecoveryPhrase()
	require.NoError(t, err)
	defer otherPhrase.Close()

	_, err = store.Recover(info.ID, otherPhrase.String())
	require.Error(t, err)
}

func TestChangePasswordThenOldPasswordFails(t *testing.T) {
	store := newTestStore(t)
	info, phrase, err := store.Create("Riley", "old-password", nil, nil)
	require.NoError(t, err)
	defer phrase.Close()

	require.NoError(t, store.ChangePassword(info.ID, "old-password", "new-password"))

	_, err = store.Open(info.ID, "old-password")
	require.ErrorIs(t, err, coherr.ErrWrongPassword)

	opened, err := store.Open(info.ID, "new-password")
	require.NoError(t, err)
	opened.MasterKey.Close()
}

func TestChangePasswordPreservesRecoveryPhrase(t *testing.T) {
	store := newTestStore(t)
	info, phrase, err := store.Create("Taylor", "old-password", nil, nil)
	require.NoError(t, err)
	defer phrase.Close()

	openedBefore, err := store.Open(info.ID, "old-password")
	require.NoError(t, err)
	before := *openedBefore.MasterKey.Bytes()
	openedBefore.MasterKey.Close()

	require.NoError(t, store.ChangePassword(info.ID, "old-password", "rotated-password"))

	recovered, err := store.Recover(info.ID, phrase.String())
	require.NoError(t, err)
	defer recovered.MasterKey.Close()
	assert.Equal(t, before, *recovered.MasterKey.Bytes())
}

func TestDeleteRemovesProfile(t *testing.T) {
	store := newTestStore(t)
	info, phrase, err := store.Create("Casey", "a-password", nil, nil)
	require.NoError(t, err)
	phrase.Close()

	require.NoError(t, store.Delete(info.ID))

	_, err = store.FindByID(info.ID)
	require.ErrorIs(t, err, coherr.ErrProfileNotFound)

	_, err = os.Stat(store.ProfileDir(info.ID))
	assert.True(t, os.IsNotExist(err))
}

func TestVerifyPasswordGatesErasure(t *testing.T) {
	store := newTestStore(t)
	info, phrase, err := store.Create("Drew", "erase-me-password", nil, nil)
	require.NoError(t, err)
	phrase.Close()

	require.NoError(t, store.VerifyPassword(info.ID, "erase-me-password"))
	require.ErrorIs(t, store.VerifyPassword(info.ID, "wrong"), coherr.ErrWrongPassword)
}
