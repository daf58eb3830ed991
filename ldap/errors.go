package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory classifies directory errors for handling decisions.
type ErrorCategory string

const (
	CategoryConnection     ErrorCategory = "connection"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryPermission     ErrorCategory = "permission"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryConflict       ErrorCategory = "conflict"
	CategoryValidation     ErrorCategory = "validation"
	CategoryServer         ErrorCategory = "server"
	CategoryUnknown        ErrorCategory = "unknown"
)

// Error wraps a directory failure with the operation, the DN it touched and
// a category the caller can branch on.
type Error struct {
	Operation string
	DN        string
	Category  ErrorCategory
	Code      uint16
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("ldap %s failed", e.Operation)}
	if e.DN != "" {
		parts = append(parts, "dn "+e.DN)
	}
	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("code %d", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the failed operation may succeed on retry.
func (e *Error) IsRetryable() bool { return e.Retryable }

// NewError classifies err and attaches operation context. The DN may be
// empty for operations that do not target a single entry.
func NewError(operation, dn string, err error) *Error {
	e := &Error{
		Operation: operation,
		DN:        dn,
		Category:  CategoryUnknown,
		Cause:     err,
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		e.Code = ldapErr.ResultCode
		e.Category = categorizeCode(ldapErr.ResultCode)
		e.Retryable = isCodeRetryable(ldapErr.ResultCode)
		e.Message = ldap.LDAPResultCodeMap[ldapErr.ResultCode]
		return e
	}

	e.Category, e.Retryable = categorizeGeneric(err)
	return e
}

func categorizeCode(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultEntryAlreadyExists,
		ldap.LDAPResultAttributeOrValueExists,
		ldap.LDAPResultNotAllowedOnNonLeaf:
		return CategoryConflict
	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return CategoryNotFound
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.LDAPResultAuthMethodNotSupported:
		return CategoryAuthentication
	case ldap.LDAPResultInsufficientAccessRights:
		return CategoryPermission
	case ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation,
		ldap.LDAPResultObjectClassViolation,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultNotAllowedOnRDN:
		return CategoryValidation
	case ldap.ErrorNetwork:
		return CategoryConnection
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultUnwillingToPerform,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultSizeLimitExceeded,
		ldap.LDAPResultOperationsError,
		ldap.LDAPResultProtocolError,
		ldap.LDAPResultOther:
		return CategoryServer
	default:
		return CategoryUnknown
	}
}

func isCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.ErrorNetwork:
		return true
	default:
		return false
	}
}

func categorizeGeneric(err error) (ErrorCategory, bool) {
	if err == nil {
		return CategoryUnknown, false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"):
		return CategoryConnection, true
	case strings.Contains(msg, "credentials"),
		strings.Contains(msg, "authentication"):
		return CategoryAuthentication, false
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "no such"):
		return CategoryNotFound, false
	default:
		return CategoryUnknown, false
	}
}

// Category reports the classification of err, unwrapping as needed.
func Category(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return categorizeCode(ldapErr.ResultCode)
	}
	if err != nil {
		cat, _ := categorizeGeneric(err)
		return cat
	}
	return CategoryUnknown
}

// IsConflict reports whether err indicates the entry already exists or
// otherwise collides with directory state.
func IsConflict(err error) bool { return Category(err) == CategoryConflict }

// IsNotFound reports whether err indicates a missing entry or attribute.
func IsNotFound(err error) bool { return Category(err) == CategoryNotFound }

// IsAuthentication reports whether err indicates rejected credentials.
func IsAuthentication(err error) bool { return Category(err) == CategoryAuthentication }
