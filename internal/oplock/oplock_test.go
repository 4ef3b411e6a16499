package oplock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockIsNoOp(t *testing.T) {
	var lock *Lock

	release, err := lock.Acquire(context.Background(), "wipe")
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	// New with a nil client collapses to the no-op lock.
	assert.Nil(t, New(nil, 0))
}

func TestHolderOp(t *testing.T) {
	assert.Equal(t, "wipe", holderOp("wipe:3f1c2d9e"))
	assert.Equal(t, "merge-all", holderOp("merge-all:abc:def"))
	assert.Equal(t, "unknown", holderOp(""))
	assert.Equal(t, "bare", holderOp("bare"))
}
