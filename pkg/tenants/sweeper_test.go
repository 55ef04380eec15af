package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	_, err := NewSweeper(NewManager(NewMemoryStore()), "every tuesday", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep schedule")
}

func TestSweeper_RunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.InviteUser(ctx, "tenant-1", tenantusers.InviteUserData{
		Email: "a@b.com", Name: "A B", Role: tenantusers.RoleTeacher,
	})
	require.NoError(t, err)

	sweeper, err := NewSweeper(f.mgr, "", nil)
	require.NoError(t, err)

	n, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(DefaultInvitationTTL + time.Second)
	n, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeper_StartStop(t *testing.T) {
	sweeper, err := NewSweeper(NewManager(NewMemoryStore()), "@every 1s", nil)
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, sweeper.AddFunc("@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))
	assert.Error(t, sweeper.AddFunc("bogus", func() {}))

	sweeper.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, sweeper.Stop(ctx))
}
