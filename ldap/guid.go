package ldap

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// GUIDBytesLength is the size of a binary objectGUID value.
const GUIDBytesLength = 16

// Active Directory stores objectGUID in mixed-endian order: the first three
// groups are little-endian, the last two big-endian. swapGUIDBytes converts
// between that layout and RFC 4122 byte order; the swap is its own inverse.
func swapGUIDBytes(b []byte) []byte {
	out := make([]byte, GUIDBytesLength)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:], b[8:])
	return out
}

// GUIDFromBytes renders a binary objectGUID as its canonical hyphenated
// string form.
func GUIDFromBytes(b []byte) (string, error) {
	if len(b) != GUIDBytesLength {
		return "", fmt.Errorf("objectGUID must be %d bytes, got %d", GUIDBytesLength, len(b))
	}
	u, err := uuid.FromBytes(swapGUIDBytes(b))
	if err != nil {
		return "", fmt.Errorf("decode objectGUID: %w", err)
	}
	return u.String(), nil
}

// GUIDToBytes converts a GUID string in any accepted textual form
// (hyphenated, braced or compact hex) to directory byte order.
func GUIDToBytes(s string) ([]byte, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse GUID %q: %w", s, err)
	}
	return swapGUIDBytes(u[:]), nil
}

// GUIDFilter builds an equality filter matching entries by objectGUID.
func GUIDFilter(s string) (string, error) {
	b, err := GUIDToBytes(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(objectGUID=%s)", ldap.EscapeFilter(string(b))), nil
}
