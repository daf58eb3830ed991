package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// NormalizeDN parses dn and reassembles it with uppercase attribute types
// and canonical RFC 4514 escaping. Directories compare DNs
// case-insensitively, so a single canonical form keeps logs and state
// comparisons stable.
func NormalizeDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("parse dn %q: %w", dn, err)
	}

	rdns := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		atvs := make([]string, 0, len(rdn.Attributes))
		for _, atv := range rdn.Attributes {
			atvs = append(atvs, strings.ToUpper(atv.Type)+"="+ldap.EscapeDN(atv.Value))
		}
		rdns = append(rdns, strings.Join(atvs, "+"))
	}
	return strings.Join(rdns, ","), nil
}

// RDNValue returns the unescaped value of the leading RDN when its attribute
// type matches attrType, for example the CN of a user entry.
func RDNValue(dn, attrType string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("parse dn %q: %w", dn, err)
	}
	if len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		return "", fmt.Errorf("dn %q has no RDN", dn)
	}
	for _, atv := range parsed.RDNs[0].Attributes {
		if strings.EqualFold(atv.Type, attrType) {
			return atv.Value, nil
		}
	}
	return "", fmt.Errorf("dn %q does not lead with %s", dn, attrType)
}

// IsDescendant reports whether dn sits strictly below ancestor, comparing
// case-insensitively. Malformed input counts as not a descendant.
func IsDescendant(dn, ancestor string) bool {
	child, err := ldap.ParseDN(dn)
	if err != nil {
		return false
	}
	parent, err := ldap.ParseDN(ancestor)
	if err != nil {
		return false
	}
	return parent.AncestorOfFold(child)
}
