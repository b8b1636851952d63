package service

import (
	"testing"

	"ikaze-payments/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.FromError(err)
	require.True(t, ok, "expected an AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func assertShortfall(t *testing.T, err error, shortfall string) {
	t.Helper()
	appErr, ok := apperror.FromError(err)
	require.True(t, ok)
	assert.Equal(t, shortfall, appErr.Details["shortfall"])
}
