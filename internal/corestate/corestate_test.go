package corestate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/audit"
	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/obslog"
	"github.com/ktiyab/coheara/internal/profilestore"
)

func newTestState(t *testing.T) (*State, *profilestore.Store) {
	t.Helper()
	store, err := profilestore.New(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.InactivityTimeoutSeconds = 1
	cfg.SleepMarginSeconds = 2
	cfg.InactivityTimeout = time.Second
	cfg.SleepMargin = 2 * time.Second

	st := New(*cfg, store, obslog.NewDefault())
	t.Cleanup(st.Lock)
	return st, store
}

func TestUnlockThenActiveSucceeds(t *testing.T) {
	st, store := newTestState(t)
	_, _, err := store.Create("TestPatient", "test-password-123", nil, nil)
	require.NoError(t, err)

	infos, err := store.ListProfiles()
	require.NoError(t, err)
	require.Len(t, infos, 1)

	opened, err := store.Open(infos[0].ID, "test-password-123")
	require.NoError(t, err)

	require.NoError(t, st.Unlock(opened))

	sess, err := st.Active()
	require.NoError(t, err)
	assert.Equal(t, "TestPatient", sess.Name())

	reg, err := st.Devices()
	require.NoError(t, err)
	assert.Equal(t, 0, reg.DeviceCount())

	pc, err := st.Pairing()
	require.NoError(t, err)
	assert.NotNil(t, pc)

	st.LogAccess(audit.Entry{Action: "read", Entity: "timeline"})
}

func TestLockClearsActiveSession(t *testing.T) {
	st, store := newTestState(t)
	_, _, err := store.Create("TestPatient", "test-password-123", nil, nil)
	require.NoError(t, err)
	infos, _ := store.ListProfiles()
	opened, err := store.Open(infos[0].ID, "test-password-123")
	require.NoError(t, err)
	require.NoError(t, st.Unlock(opened))

	st.Lock()

	_, err = st.Active()
	assert.Error(t, err)
	_, err = st.Devices()
	assert.Error(t, err)
}

func TestCheckTimeoutTripsAfterInactivity(t *testing.T) {
	st, _ := newTestState(t)
	st.Touch()
	assert.False(t, st.CheckTimeout())

	time.Sleep(1200 * time.Millisecond)
	assert.True(t, st.CheckTimeout())
}

func TestCheckTimeoutIgnoresSleepJump(t *testing.T) {
	st, _ := newTestState(t)
	st.lastActivityMu.Lock()
	st.lastActivity = time.Now().Add(-10 * time.Second)
	st.lastActivityMu.Unlock()

	assert.False(t, st.CheckTimeout())
	assert.WithinDuration(t, time.Now(), st.lastActivityAt(), 50*time.Millisecond)
}

type fakeServer struct {
	started chan struct{}
	stopped chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{started: make(chan struct{}), stopped: make(chan struct{})}
}

func (f *fakeServer) Run(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	close(f.stopped)
	return nil
}

func TestServerSlotStartStop(t *testing.T) {
	var slot ServerSlot
	srv := newFakeServer()

	slot.Start(context.Background(), srv)
	<-srv.started
	assert.True(t, slot.Running())

	require.NoError(t, slot.Stop())
	<-srv.stopped
	assert.False(t, slot.Running())
}

func TestServerSlotStartReplacesPrevious(t *testing.T) {
	var slot ServerSlot
	first := newFakeServer()
	second := newFakeServer()

	slot.Start(context.Background(), first)
	<-first.started

	slot.Start(context.Background(), second)
	<-first.stopped
	<-second.started

	require.NoError(t, slot.Stop())
	<-second.stopped
}
