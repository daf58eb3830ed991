package dirsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/isometry/dirsync/config"
)

var testConnectors = []config.Connector{
	{Name: "Fabrikam", ID: "fabrikam-1", Root: "DC=fabrikam,DC=org", Projects: true},
	{Name: "Contoso", ID: "contoso-1", Root: "DC=contoso,DC=com", Target: true},
}

func TestResolveTargetDN(t *testing.T) {
	contoso := testConnectors[1]

	tests := []struct {
		name string
		dn   string
		want string
	}{
		{
			name: "placeholder token replaced",
			dn:   "CN=Jane Doe,OU=Users,<DomainRoot>",
			want: "CN=Jane Doe,OU=Users,DC=contoso,DC=com",
		},
		{
			name: "placeholder token is case-insensitive",
			dn:   "CN=Jane Doe,OU=Users,<domainroot>",
			want: "CN=Jane Doe,OU=Users,DC=contoso,DC=com",
		},
		{
			name: "known root re-rooted",
			dn:   "CN=Jane Doe,OU=Users,DC=fabrikam,DC=org",
			want: "CN=Jane Doe,OU=Users,DC=contoso,DC=com",
		},
		{
			name: "known root matches case-insensitively",
			dn:   "CN=Jane Doe,OU=Users,dc=FABRIKAM,dc=ORG",
			want: "CN=Jane Doe,OU=Users,DC=contoso,DC=com",
		},
		{
			name: "prefix preserved byte for byte",
			dn:   "cn=jane  doe,ou=A B,DC=fabrikam,DC=org",
			want: "cn=jane  doe,ou=A B,DC=contoso,DC=com",
		},
		{
			name: "target's own root re-rooted to itself",
			dn:   "CN=Jane Doe,DC=contoso,DC=com",
			want: "CN=Jane Doe,DC=contoso,DC=com",
		},
		{
			name: "unknown root passes through",
			dn:   "CN=Jane Doe,DC=adatum,DC=net",
			want: "CN=Jane Doe,DC=adatum,DC=net",
		},
		{
			name: "placeholder mid-DN is not a token",
			dn:   "CN=<DomainRoot>,DC=adatum,DC=net",
			want: "CN=<DomainRoot>,DC=adatum,DC=net",
		},
		{
			name: "bare placeholder becomes the root itself",
			dn:   "<DomainRoot>",
			want: "DC=contoso,DC=com",
		},
		{
			name: "empty DN passes through",
			dn:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveTargetDN(tt.dn, contoso, testConnectors))
		})
	}
}

// With nested domains both roots suffix-match a DN under the child; the
// longest configured root must win no matter which order the connectors
// were declared in.
func TestResolveTargetDNPrefersLongestRoot(t *testing.T) {
	parent := config.Connector{Name: "Fabrikam", ID: "fabrikam-1", Root: "DC=fabrikam,DC=org"}
	child := config.Connector{Name: "Corp", ID: "corp-1", Root: "DC=corp,DC=fabrikam,DC=org"}
	target := config.Connector{Name: "Contoso", ID: "contoso-1", Root: "DC=contoso,DC=com", Target: true}

	dn := "CN=Jane Doe,OU=Users,DC=corp,DC=fabrikam,DC=org"
	want := "CN=Jane Doe,OU=Users,DC=contoso,DC=com"

	orders := map[string][]config.Connector{
		"parent first": {parent, child, target},
		"child first":  {child, parent, target},
	}
	for name, connectors := range orders {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, resolveTargetDN(dn, target, connectors))
		})
	}
}

func BenchmarkResolveTargetDN(b *testing.B) {
	contoso := testConnectors[1]
	for i := 0; i < b.N; i++ {
		resolveTargetDN("CN=Jane Doe,OU=Users,DC=fabrikam,DC=org", contoso, testConnectors)
	}
}
