package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletionStateScan(t *testing.T) {
	var d DeletionState
	require.NoError(t, d.Scan(nil))
	assert.False(t, d.IsDeleted())

	require.NoError(t, d.Scan(int64(7)))
	v, ok := d.Version()
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)

	require.NoError(t, d.Scan([]byte("12")))
	v, _ = d.Version()
	assert.Equal(t, int64(12), v)

	assert.Error(t, d.Scan("nope"))
}

func TestDeletionStateValue(t *testing.T) {
	v, err := Active().Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = DeletedIn(3).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestDeletionStateJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		A DeletionState `json:"a"`
		B DeletionState `json:"b"`
	}{Active(), DeletedIn(4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":4}`, string(out))
}

func TestRoleFromValue(t *testing.T) {
	for _, r := range []Role{RoleNotSet, RoleUser, RoleContributor, RoleAdmin, RoleTranslator} {
		got, err := ParseRole(int(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseRole(9)
	assert.Error(t, err)
}
