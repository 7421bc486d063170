package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Authentication("bad token"), http.StatusUnauthorized},
		{Authorization("denied"), http.StatusForbidden},
		{NotFound("missing"), http.StatusNotFound},
		{Validation("bad input"), http.StatusBadRequest},
		{Configuration("no org"), http.StatusBadRequest},
		{Infrastructure("store down", errors.New("dial tcp")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestError_PublicMessage(t *testing.T) {
	infra := Infrastructure("failed to write user record", errors.New("connection refused"))
	assert.Equal(t, "internal server error", infra.PublicMessage())
	assert.Contains(t, infra.Error(), "connection refused")

	assert.Equal(t, "denied", Authorization("denied").PublicMessage())
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("failed to update: %w", NotFound("user not found"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindValidation))

	assert.Equal(t, KindInfrastructure, KindOf(errors.New("boom")))
	assert.False(t, IsKind(errors.New("boom"), KindInfrastructure))
}

func TestAsError(t *testing.T) {
	plain := errors.New("boom")
	e := AsError(plain)
	assert.Equal(t, KindInfrastructure, e.Kind)
	assert.True(t, errors.Is(e, plain))

	v := Validation("bad")
	assert.Same(t, v, AsError(v))
}

func TestAssignmentDenied_NeverNil(t *testing.T) {
	e := AssignmentDenied("denied", nil)
	assert.NotNil(t, e.Allowed)
	assert.Empty(t, e.Allowed)
}
