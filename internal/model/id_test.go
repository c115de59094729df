package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	upper, err := ParseID("  6BA7B810-9DAD-11D1-80B4-00C04FD430C8 ")
	require.NoError(t, err)
	assert.Equal(t, ID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), upper)

	for _, bad := range []string{"", "abc", "123", "6ba7b810-9dad-11d1-80b4"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}

func TestMessageRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleFutureSelf.Valid())
	assert.False(t, MessageRole("system").Valid())
	assert.False(t, MessageRole("").Valid())
}
