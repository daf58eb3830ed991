package ldap

import (
	"fmt"

	objectsid "github.com/bwmarrin/go-objectsid"
)

// A binary SID carries a one byte revision, a one byte sub-authority count
// and a 48-bit identifier authority before any sub-authorities.
const sidHeaderLength = 8

// SIDFromBytes renders a binary objectSid in its S-1-... string form.
func SIDFromBytes(b []byte) (string, error) {
	if len(b) < sidHeaderLength {
		return "", fmt.Errorf("objectSid must be at least %d bytes, got %d", sidHeaderLength, len(b))
	}
	if want := sidHeaderLength + 4*int(b[1]); len(b) != want {
		return "", fmt.Errorf("objectSid length %d does not match %d sub-authorities", len(b), b[1])
	}
	return objectsid.Decode(b).String(), nil
}
