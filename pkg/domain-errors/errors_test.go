package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeWriteFailure, "ignored"))
	assert.NoError(t, Wrapf(nil, CodeWriteFailure, "ignored %d", 1))
}

func TestWrapPreservesTheCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeWriteFailure, "delete profile")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "delete profile")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestHasCodeWalksTheChain(t *testing.T) {
	inner := New(CodeNotFound, "profile missing")
	outer := Wrap(fmt.Errorf("retry 3: %w", inner), CodeWriteFailure, "repair failed")

	assert.True(t, HasCode(outer, CodeWriteFailure))
	assert.True(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(outer, CodeVerification))
	assert.False(t, HasCode(nil, CodeNotFound))
}

func TestCodeOfAndMessageOf(t *testing.T) {
	assert.Equal(t, CodeVerification, CodeOf(New(CodeVerification, "residue remains")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, "residue remains", MessageOf(New(CodeVerification, "residue remains")))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:   http.StatusBadRequest,
		CodePrecondition: http.StatusBadRequest,
		CodeNotFound:     http.StatusNotFound,
		CodeConflict:     http.StatusConflict,
		CodeLocked:       http.StatusConflict,
		CodeUnauthorized: http.StatusUnauthorized,
		CodeReadFailure:  http.StatusBadGateway,
		CodeWriteFailure: http.StatusBadGateway,
		CodeVerification: http.StatusBadGateway,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}
