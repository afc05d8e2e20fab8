package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	xerrors "github.com/subvoxlabs/transcribe-api/errors"
)

func TestCallerFromRequest_BearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("Authorization", "Bearer user-123")

	caller, err := callerFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, "user-123", caller.UserID)
	require.True(t, caller.Authenticated)
}

func TestCallerFromRequest_EmptyBearerRejected(t *testing.T) {
	req := httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("Authorization", "Bearer ")

	_, err := callerFromRequest(req)
	te := xerrors.AsTaskError(err)
	require.Equal(t, xerrors.CodeUnauthorized, te.Code)
}

func TestCallerFromRequest_AnonID(t *testing.T) {
	req := httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("X-Anon-Id", "anon-42")

	caller, err := callerFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, "anon-42", caller.AnonID)
	require.False(t, caller.Authenticated)
}

func TestCallerFromRequest_NoIdentityRejected(t *testing.T) {
	req := httptest.NewRequest("GET", "/tasks", nil)

	_, err := callerFromRequest(req)
	te := xerrors.AsTaskError(err)
	require.Equal(t, xerrors.CodeUnauthorized, te.Code)
}
