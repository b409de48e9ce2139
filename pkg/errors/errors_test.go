package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageIncludesInternal(t *testing.T) {
	base := New("TEST", "something failed", http.StatusBadRequest)
	wrapped := base.WithInternal(errors.New("disk full"))

	require.Equal(t, "something failed: disk full", wrapped.Error())
	require.Equal(t, "something failed", base.Error(), "WithInternal must not mutate the original")
}

func TestFromErrorUnwrapsAppError(t *testing.T) {
	inner := ErrForbidden.WithInternal(errors.New("scope mismatch"))
	chained := fmt.Errorf("grant: %w", inner)

	appErr := FromError(chained)
	require.Equal(t, ErrForbidden.Code, appErr.Code)
	require.Equal(t, http.StatusForbidden, appErr.StatusCode)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	require.Equal(t, ErrInternalServer.Code, appErr.Code)
	require.EqualError(t, appErr.Unwrap(), "boom")
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("evaluator: %w", ErrStoreUnavailable)
	require.ErrorIs(t, wrapped, ErrStoreUnavailable)

	copied := ErrStoreUnavailable.WithInternal(errors.New("timeout"))
	require.ErrorIs(t, copied, ErrStoreUnavailable)
	require.NotErrorIs(t, copied, ErrForbidden)
}
