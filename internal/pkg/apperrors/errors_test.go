package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := map[ErrorType]int{
		ErrSignatureInvalid:      http.StatusUnauthorized,
		ErrInvalidFiller:         http.StatusForbidden,
		ErrInvalidNonce:          http.StatusConflict,
		ErrOverFilled:            http.StatusConflict,
		ErrIntentExpired:         http.StatusGone,
		ErrOfferTooLow:           http.StatusUnprocessableEntity,
		ErrInsufficientLiquidity: http.StatusUnprocessableEntity,
		ErrTokenMismatch:         http.StatusBadRequest,
		ErrRateLimited:           http.StatusTooManyRequests,
		ErrReadOnly:              http.StatusServiceUnavailable,
		ErrInternal:              http.StatusInternalServerError,
	}
	for typ, status := range cases {
		assert.Equal(t, status, New(typ, "x", nil).HTTPStatus, typ)
	}
}

func TestIsFollowsChain(t *testing.T) {
	inner := Newf(ErrInvalidNonce, "nonce %d used", 7)
	outer := New(ErrConflict, "settlement failed", fmt.Errorf("permit: %w", inner))

	assert.True(t, Is(outer, ErrConflict))
	assert.True(t, Is(outer, ErrInvalidNonce))
	assert.False(t, Is(outer, ErrOverFilled))
	assert.Equal(t, ErrConflict, TypeOf(outer))
	assert.Equal(t, ErrInternal, TypeOf(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	typed := NewNotFound("market missing")
	assert.Same(t, typed, Wrap(fmt.Errorf("lookup: %w", typed)))

	plain := errors.New("disk on fire")
	wrapped := Wrap(plain)
	assert.Equal(t, ErrInternal, wrapped.Type)
	assert.ErrorIs(t, wrapped, plain)
}
