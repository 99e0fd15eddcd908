package dto

import (
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequest_Validate(t *testing.T) {
	valid := RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "long-enough"}
	assert.NoError(t, valid.Validate())

	alias := RegisterRequest{Account: "alice", Email: "alice@example.com", Password: "long-enough"}
	assert.NoError(t, alias.Validate())
	assert.Equal(t, "alice", alias.Name())

	bad := RegisterRequest{Email: "not-an-email", Password: "short"}
	err := bad.Validate()
	require.Error(t, err)

	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs, "username")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestRegisterRequest_UsernameRejectsEmailShape(t *testing.T) {
	for _, name := range []string{"victim@example.com", "has space"} {
		err := RegisterRequest{Username: name, Email: "new@example.com", Password: "long-enough"}.Validate()

		var errs validation.Errors
		require.ErrorAs(t, err, &errs, name)
		assert.Contains(t, errs, "username")
		assert.NotContains(t, errs, "email")
	}
}

func TestLoginRequest_Validate(t *testing.T) {
	assert.NoError(t, LoginRequest{Account: "alice", Password: "x"}.Validate())
	assert.Error(t, LoginRequest{Account: "alice"}.Validate())
	assert.Error(t, LoginRequest{Password: "x"}.Validate())
}

func TestChangePasswordRequest_Validate(t *testing.T) {
	assert.NoError(t, ChangePasswordRequest{CurrentPassword: "old", NewPassword: "new-password"}.Validate())
	assert.Error(t, ChangePasswordRequest{CurrentPassword: "old", NewPassword: "short"}.Validate())
}
