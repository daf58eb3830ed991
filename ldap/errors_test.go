package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

func ldapError(code uint16) error {
	return &ldap.Error{ResultCode: code, Err: errors.New(ldap.LDAPResultCodeMap[code])}
}

func TestNewErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{
			name:     "entry already exists",
			err:      ldapError(ldap.LDAPResultEntryAlreadyExists),
			category: CategoryConflict,
		},
		{
			name:     "no such object",
			err:      ldapError(ldap.LDAPResultNoSuchObject),
			category: CategoryNotFound,
		},
		{
			name:     "invalid credentials",
			err:      ldapError(ldap.LDAPResultInvalidCredentials),
			category: CategoryAuthentication,
		},
		{
			name:     "insufficient access",
			err:      ldapError(ldap.LDAPResultInsufficientAccessRights),
			category: CategoryPermission,
		},
		{
			name:     "invalid dn syntax",
			err:      ldapError(ldap.LDAPResultInvalidDNSyntax),
			category: CategoryValidation,
		},
		{
			name:      "busy server",
			err:       ldapError(ldap.LDAPResultBusy),
			category:  CategoryServer,
			retryable: true,
		},
		{
			name:      "network failure",
			err:       ldapError(ldap.ErrorNetwork),
			category:  CategoryConnection,
			retryable: true,
		},
		{
			name:      "generic connection refused",
			err:       errors.New("dial tcp 10.0.0.1:636: connection refused"),
			category:  CategoryConnection,
			retryable: true,
		},
		{
			name:     "generic unknown",
			err:      errors.New("something odd happened"),
			category: CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewError("search", "DC=contoso,DC=com", tt.err)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.retryable, e.IsRetryable())
			assert.ErrorIs(t, e, tt.err)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	e := NewError("add", "CN=Jane Doe,DC=contoso,DC=com", ldapError(ldap.LDAPResultEntryAlreadyExists))
	msg := e.Error()
	assert.Contains(t, msg, "ldap add failed")
	assert.Contains(t, msg, "CN=Jane Doe,DC=contoso,DC=com")
	assert.Contains(t, msg, "code 68")
}

func TestCategoryHelpers(t *testing.T) {
	conflict := NewError("add", "", ldapError(ldap.LDAPResultEntryAlreadyExists))
	notFound := NewError("delete", "", ldapError(ldap.LDAPResultNoSuchObject))
	badCreds := NewError("bind", "", ldapError(ldap.LDAPResultInvalidCredentials))

	assert.True(t, IsConflict(conflict))
	assert.False(t, IsConflict(notFound))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsAuthentication(badCreds))

	// Helpers see through additional wrapping.
	wrapped := fmt.Errorf("commit failed: %w", conflict)
	assert.True(t, IsConflict(wrapped))

	// And classify bare go-ldap errors without a wrapping Error.
	assert.True(t, IsConflict(ldapError(ldap.LDAPResultEntryAlreadyExists)))

	assert.Equal(t, CategoryUnknown, Category(nil))
	assert.False(t, IsConflict(nil))
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := NewConnectionError("pool exhausted", true, cause)

	assert.True(t, e.IsRetryable())
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "pool exhausted")
	assert.Contains(t, e.Error(), "connection refused")

	bare := NewConnectionError("pool is closed", false, nil)
	assert.False(t, bare.IsRetryable())
	assert.Equal(t, "pool is closed", bare.Error())
}
