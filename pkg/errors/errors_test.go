package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("authenticate: %w", WithCause(ErrExpiredToken, context.DeadlineExceeded))

	assert.True(t, Is(err, ErrExpiredToken))
	assert.False(t, Is(err, ErrInvalidToken))
	assert.True(t, Is(err, context.DeadlineExceeded))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, GetCode(ErrUnauthorized))
	assert.Equal(t, http.StatusServiceUnavailable, GetCode(Unavailable(context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, GetCode(fmt.Errorf("plain")))
}

func TestForbiddenDefaultsToUnauthorized(t *testing.T) {
	assert.Same(t, ErrUnauthorized, Forbidden(""))

	err := fmt.Errorf("resolve: %w", Forbidden("无权操作"))
	assert.Equal(t, "无权操作", GetMessage(err))
	assert.Equal(t, http.StatusForbidden, GetCode(err))
	assert.True(t, Is(err, ErrUnauthorized))
	assert.False(t, Is(err, ErrUnauthenticated))
}
