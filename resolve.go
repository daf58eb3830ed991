package dirsync

import (
	"strings"

	"github.com/isometry/dirsync/config"
)

// RootToken is the placeholder a canonical DN carries in place of a concrete
// domain root. Import converters typically strip the source root down to it;
// resolution substitutes the target connector's root for it on the way out.
const RootToken = "<DomainRoot>"

// resolveTargetDN rewrites sourceDN under the target connector's root. A
// trailing RootToken substitutes directly. Otherwise a DN ending in some
// configured connector's root is re-rooted, the longest matching root
// winning when domains nest. A DN matching neither form passes through
// unchanged. The prefix ahead of the replaced suffix is preserved byte for
// byte.
func resolveTargetDN(sourceDN string, target config.Connector, connectors []config.Connector) string {
	if prefix, ok := cutRootSuffix(sourceDN, RootToken); ok {
		return prefix + target.Root
	}
	best := ""
	for _, conn := range connectors {
		if len(conn.Root) <= len(best) {
			continue
		}
		if _, ok := cutRootSuffix(sourceDN, conn.Root); ok {
			best = conn.Root
		}
	}
	if best != "" {
		prefix, _ := cutRootSuffix(sourceDN, best)
		return prefix + target.Root
	}
	return sourceDN
}

// cutRootSuffix strips a case-insensitive suffix, returning the remaining
// prefix.
func cutRootSuffix(dn, suffix string) (string, bool) {
	if len(dn) < len(suffix) {
		return "", false
	}
	head, tail := dn[:len(dn)-len(suffix)], dn[len(dn)-len(suffix):]
	if !strings.EqualFold(tail, suffix) {
		return "", false
	}
	return head, true
}
