package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := New(CodeNotFound, "invoice not found").WithDetail("id=42")
	assert.Equal(t, "[NOT_FOUND] invoice not found: id=42", err.Error())

	wrapped := Wrap(errors.New("dial tcp: timeout"), CodeRetrievalFailed, "candidate retrieval failed")
	assert.Equal(t, "[RETRIEVAL_FAILED] candidate retrieval failed: dial tcp: timeout", wrapped.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestIsCode_ThroughChain(t *testing.T) {
	root := New(CodeNotFound, "row missing")
	outer := Wrap(root, CodeRetrievalFailed, "lookup failed")
	foreign := fmt.Errorf("handler: %w", outer)

	assert.True(t, IsCode(foreign, CodeRetrievalFailed))
	assert.True(t, IsCode(foreign, CodeNotFound))
	assert.False(t, IsCode(foreign, CodeConfigInvalid))
	assert.False(t, IsCode(errors.New("plain"), CodeNotFound))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeInvalidInput, GetCode(InvalidInput("bad json")))
	assert.Equal(t, CodeInternal, GetCode(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := Wrap(sentinel, CodeStorageFailed, "upload failed")
	require.ErrorIs(t, err, sentinel)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeRetrievalFailed, http.StatusServiceUnavailable},
		{CodeStorageFailed, http.StatusBadGateway},
		{CodeConfigInvalid, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}
