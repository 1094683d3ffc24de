package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/pkg/errors"
)

const admin = "0xADMIN"

func TestNewService_AdminHoldsEverything(t *testing.T) {
	s := NewService(admin)

	for _, cap := range []Capability{CapCreateFund, CapAuthorizeToken, CapPause, CapAdminTransferRoles} {
		assert.True(t, s.Has(admin, cap), "admin should hold %s", cap)
	}
	assert.False(t, s.Has("0xRANDO", CapCreateFund))
}

func TestGrantRevoke(t *testing.T) {
	s := NewService(admin)

	require.NoError(t, s.Grant(admin, "0xOPERATOR", CapCreateFund))
	assert.True(t, s.Has("0xOPERATOR", CapCreateFund))
	assert.False(t, s.Has("0xOPERATOR", CapPause), "grants are per capability")

	require.NoError(t, s.Revoke(admin, "0xOPERATOR", CapCreateFund))
	assert.False(t, s.Has("0xOPERATOR", CapCreateFund))
}

func TestGrant_RequiresRoleTransferCapability(t *testing.T) {
	s := NewService(admin)
	require.NoError(t, s.Grant(admin, "0xOPERATOR", CapCreateFund))

	// Holding create_fund does not confer the right to hand out grants
	err := s.Grant("0xOPERATOR", "0xFRIEND", CapCreateFund)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	err = s.Revoke("0xOPERATOR", admin, CapPause)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestRequire(t *testing.T) {
	s := NewService(admin)

	assert.NoError(t, s.Require(admin, CapPause))
	assert.ErrorIs(t, s.Require("0xRANDO", CapPause), errors.ErrUnauthorized)
}

func TestPauseUnpause(t *testing.T) {
	s := NewService(admin)

	assert.False(t, s.Paused())
	assert.NoError(t, s.CheckRunning())

	require.NoError(t, s.Pause(admin))
	assert.True(t, s.Paused())
	assert.ErrorIs(t, s.CheckRunning(), errors.ErrPaused)

	require.NoError(t, s.Unpause(admin))
	assert.False(t, s.Paused())
	assert.NoError(t, s.CheckRunning())
}

func TestPause_RequiresCapability(t *testing.T) {
	s := NewService(admin)

	assert.ErrorIs(t, s.Pause("0xRANDO"), errors.ErrUnauthorized)
	assert.False(t, s.Paused())

	require.NoError(t, s.Pause(admin))
	assert.ErrorIs(t, s.Unpause("0xRANDO"), errors.ErrUnauthorized)
	assert.True(t, s.Paused(), "unauthorized unpause must not clear the flag")
}
