package ldap

import (
	"context"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/record"
)

type fakeDirectory struct {
	searchReqs []*SearchRequest
	entries    []*ldap.Entry
	searchErr  error

	addReqs []*AddRequest
	addErr  error

	modReqs []*ModifyRequest
	modErr  error

	deleted []string
	delErr  error

	closed bool
}

func (f *fakeDirectory) Connect(ctx context.Context) error { return nil }
func (f *fakeDirectory) Close() error                      { f.closed = true; return nil }
func (f *fakeDirectory) Ping(ctx context.Context) error    { return nil }
func (f *fakeDirectory) Stats() PoolStats                  { return PoolStats{} }

func (f *fakeDirectory) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	f.searchReqs = append(f.searchReqs, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &SearchResult{Entries: f.entries}, nil
}

func (f *fakeDirectory) Add(ctx context.Context, req *AddRequest) error {
	f.addReqs = append(f.addReqs, req)
	return f.addErr
}

func (f *fakeDirectory) Modify(ctx context.Context, req *ModifyRequest) error {
	f.modReqs = append(f.modReqs, req)
	return f.modErr
}

func (f *fakeDirectory) Delete(ctx context.Context, dn string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, dn)
	return nil
}

const testRoot = "DC=contoso,DC=com"

func newTestSpace(dir *fakeDirectory) *Space {
	return NewSpace("contoso-1", testRoot, dir, testLogger())
}

func userEntry(dn, account, displayName string) *ldap.Entry {
	sidBytes := []byte{
		0x01, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05,
		0x15, 0x00, 0x00, 0x00,
		0xa0, 0x65, 0xcf, 0x7e,
		0x78, 0x4b, 0x9b, 0x5f,
		0xe7, 0x7c, 0x87, 0x70,
		0x09, 0x1c, 0x01, 0x00,
	}
	return &ldap.Entry{
		DN: dn,
		Attributes: []*ldap.EntryAttribute{
			{Name: "sAMAccountName", Values: []string{account}},
			{Name: "displayName", Values: []string{displayName}},
			{Name: "objectSid", ByteValues: [][]byte{sidBytes}},
			{Name: "objectGUID", ByteValues: [][]byte{adGUIDBytes}},
		},
	}
}

func personRecord(account string) *record.Canonical {
	return record.NewCanonical(record.ObjectTypePerson, map[string]string{
		record.AttrAccountName: account,
		record.AttrDisplayName: "Jane Doe",
		record.AttrDN:          "CN=Jane Doe,OU=Users,DC=fabrikam,DC=org",
	})
}

func TestSpaceLinked(t *testing.T) {
	dir := &fakeDirectory{
		entries: []*ldap.Entry{
			userEntry("CN=Jane Doe,OU=Users,DC=contoso,DC=com", "jdoe", "Jane Doe"),
		},
	}
	space := newTestSpace(dir)

	linked, err := space.Linked(context.Background(), personRecord("jdoe"))
	require.NoError(t, err)
	require.Len(t, linked, 1)

	rec := linked[0]
	assert.Equal(t, "contoso-1", rec.Connector())
	assert.Equal(t, record.ObjectTypeUser, rec.ObjectType())
	assert.Equal(t, "CN=Jane Doe,OU=Users,DC=contoso,DC=com", rec.DN())

	account, _ := rec.Attr("sAMAccountName")
	assert.Equal(t, "jdoe", account)

	sid, _ := rec.Attr("objectSid")
	assert.Equal(t, "S-1-5-21-2127521184-1604012920-1887927527-72713", sid)

	guid, _ := rec.Attr("objectGUID")
	assert.Equal(t, adGUIDString, guid)

	require.Len(t, dir.searchReqs, 1)
	req := dir.searchReqs[0]
	assert.Equal(t, testRoot, req.BaseDN)
	assert.Equal(t, ScopeWholeSubtree, req.Scope)
	assert.Equal(t, "(&(objectClass=user)(sAMAccountName=jdoe))", req.Filter)
}

func TestSpaceLinkedEscapesAccount(t *testing.T) {
	dir := &fakeDirectory{}
	space := newTestSpace(dir)

	_, err := space.Linked(context.Background(), personRecord("j*doe"))
	require.NoError(t, err)

	require.Len(t, dir.searchReqs, 1)
	assert.Contains(t, dir.searchReqs[0].Filter, `j\2adoe`)
}

func TestSpaceLinkedCachesLookups(t *testing.T) {
	dir := &fakeDirectory{}
	space := newTestSpace(dir)
	canonical := personRecord("jdoe")

	_, err := space.Linked(context.Background(), canonical)
	require.NoError(t, err)
	_, err = space.Linked(context.Background(), canonical)
	require.NoError(t, err)

	assert.Len(t, dir.searchReqs, 1)
}

func TestSpaceLinkedRequiresAccountName(t *testing.T) {
	space := newTestSpace(&fakeDirectory{})
	canonical := record.NewCanonical(record.ObjectTypePerson, nil)

	_, err := space.Linked(context.Background(), canonical)
	assert.ErrorContains(t, err, record.AttrAccountName)
}

func TestSpaceCommit(t *testing.T) {
	dir := &fakeDirectory{}
	space := newTestSpace(dir)
	canonical := personRecord("jdoe")

	staged := space.Stage(record.ObjectTypeUser)
	staged.SetDN("cn=Jane Doe,ou=Users,dc=contoso,dc=com")
	staged.SetAttr(record.AttrSAMAccountName, "jdoe")
	staged.SetAttr(record.AttrDisplayName, "Jane Doe")

	require.NoError(t, space.Commit(context.Background(), canonical, staged))

	require.Len(t, dir.addReqs, 1)
	add := dir.addReqs[0]
	assert.Equal(t, "CN=Jane Doe,OU=Users,DC=contoso,DC=com", add.DN)
	assert.Equal(t, []string{"top", "person", "organizationalPerson", "user"}, add.Attributes["objectClass"])
	assert.Equal(t, []string{"Jane Doe"}, add.Attributes["cn"])
	assert.Equal(t, []string{"jdoe"}, add.Attributes["sAMAccountName"])
	assert.Equal(t, []string{"Jane Doe"}, add.Attributes["displayName"])
}

func TestSpaceCommitInvalidatesCache(t *testing.T) {
	dir := &fakeDirectory{}
	space := newTestSpace(dir)
	canonical := personRecord("jdoe")

	_, err := space.Linked(context.Background(), canonical)
	require.NoError(t, err)

	staged := space.Stage(record.ObjectTypeUser)
	staged.SetDN("CN=Jane Doe,OU=Users,DC=contoso,DC=com")
	staged.SetAttr(record.AttrSAMAccountName, "jdoe")
	require.NoError(t, space.Commit(context.Background(), canonical, staged))

	_, err = space.Linked(context.Background(), canonical)
	require.NoError(t, err)

	assert.Len(t, dir.searchReqs, 2)
}

func TestSpaceCommitConflict(t *testing.T) {
	dir := &fakeDirectory{
		addErr: NewError("add", "", ldapError(ldap.LDAPResultEntryAlreadyExists)),
	}
	space := newTestSpace(dir)

	staged := space.Stage(record.ObjectTypeUser)
	staged.SetDN("CN=Jane Doe,OU=Users,DC=contoso,DC=com")
	staged.SetAttr(record.AttrSAMAccountName, "jdoe")

	err := space.Commit(context.Background(), personRecord("jdoe"), staged)
	assert.ErrorIs(t, err, record.ErrAlreadyExists)
}

func TestSpaceCommitRejections(t *testing.T) {
	space := newTestSpace(&fakeDirectory{})
	canonical := personRecord("jdoe")

	t.Run("foreign record", func(t *testing.T) {
		foreign := record.NewEntry("fabrikam-1", record.ObjectTypeUser, "CN=x,DC=contoso,DC=com")
		err := space.Commit(context.Background(), canonical, foreign)
		assert.ErrorContains(t, err, "belongs to")
	})

	t.Run("missing dn", func(t *testing.T) {
		staged := space.Stage(record.ObjectTypeUser)
		err := space.Commit(context.Background(), canonical, staged)
		assert.ErrorContains(t, err, "no DN")
	})

	t.Run("malformed dn", func(t *testing.T) {
		staged := space.Stage(record.ObjectTypeUser)
		staged.SetDN("garbage")
		err := space.Commit(context.Background(), canonical, staged)
		assert.Error(t, err)
	})
}

func TestSpaceUpdate(t *testing.T) {
	dir := &fakeDirectory{}
	space := newTestSpace(dir)

	rec := record.NewEntry("contoso-1", record.ObjectTypeUser, "CN=Jane Doe,OU=Users,DC=contoso,DC=com")
	rec.SetAttr(record.AttrDisplayName, "Jane D. Doe")

	require.NoError(t, space.Update(context.Background(), rec))

	require.Len(t, dir.modReqs, 1)
	mod := dir.modReqs[0]
	assert.Equal(t, "CN=Jane Doe,OU=Users,DC=contoso,DC=com", mod.DN)
	assert.Equal(t, []string{"Jane D. Doe"}, mod.ReplaceAttributes[record.AttrDisplayName])
}

func TestSpaceUpdateWithoutAttrsIsNoop(t *testing.T) {
	dir := &fakeDirectory{}
	space := newTestSpace(dir)

	rec := record.NewEntry("contoso-1", record.ObjectTypeUser, "CN=Jane Doe,DC=contoso,DC=com")
	require.NoError(t, space.Update(context.Background(), rec))
	assert.Empty(t, dir.modReqs)
}

func TestSpaceRemove(t *testing.T) {
	t.Run("removes entry", func(t *testing.T) {
		dir := &fakeDirectory{}
		space := newTestSpace(dir)

		require.NoError(t, space.Remove(context.Background(), "CN=Jane Doe,DC=contoso,DC=com"))
		assert.Equal(t, []string{"CN=Jane Doe,DC=contoso,DC=com"}, dir.deleted)
	})

	t.Run("tolerates missing entry", func(t *testing.T) {
		dir := &fakeDirectory{delErr: NewError("delete", "", ldapError(ldap.LDAPResultNoSuchObject))}
		space := newTestSpace(dir)

		assert.NoError(t, space.Remove(context.Background(), "CN=Gone,DC=contoso,DC=com"))
	})

	t.Run("propagates other failures", func(t *testing.T) {
		dir := &fakeDirectory{delErr: NewError("delete", "", ldapError(ldap.LDAPResultInsufficientAccessRights))}
		space := newTestSpace(dir)

		err := space.Remove(context.Background(), "CN=Jane Doe,DC=contoso,DC=com")
		assert.Error(t, err)
	})
}

func TestSpacesFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
[[connector]]
name = "Fabrikam HR"
id = "fabrikam-1"
root = "DC=fabrikam,DC=org"
projects = true

[[connector]]
name = "Contoso AD"
id = "contoso-1"
root = "DC=contoso,DC=com"
target = true

[connector.directory]
urls = ["ldaps://dc1.contoso.com"]
username = "svc-sync"
password = "secret"
`))
	require.NoError(t, err)

	spaces, err := SpacesFromConfig(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer spaces.Close()

	space, err := spaces.SpaceFor(context.Background(), "contoso-1")
	require.NoError(t, err)
	assert.NotNil(t, space)

	typed, ok := spaces.Space("contoso-1")
	require.True(t, ok)
	assert.Equal(t, "DC=contoso,DC=com", typed.Root())

	_, err = spaces.SpaceFor(context.Background(), "fabrikam-1")
	assert.ErrorContains(t, err, "no directory space")

	require.NoError(t, spaces.Close())
	_, err = spaces.SpaceFor(context.Background(), "contoso-1")
	assert.ErrorContains(t, err, "closed")
}

func TestObjectClasses(t *testing.T) {
	assert.Equal(t, []string{"top", "person", "organizationalPerson", "user"},
		objectClasses(record.ObjectTypeUser))
	assert.Equal(t, []string{"top", "device"}, objectClasses("device"))
}

func TestConnectionConfigFromSettings(t *testing.T) {
	cfg, err := config.Parse([]byte(`
[[connector]]
name = "Contoso AD"
id = "contoso-1"
root = "DC=contoso,DC=com"
target = true

[connector.directory]
domain = "contoso.com"
auth = "kerberos"
username = "svc-sync@contoso.com"
keytab = "/etc/sync.keytab"
timeout_seconds = 10
pool_size = 2
tls_skip_verify = true
`))
	require.NoError(t, err)

	conn, ok := cfg.ConnectorByID("contoso-1")
	require.True(t, ok)

	cc := connectionConfig(conn.Directory)
	assert.Equal(t, "contoso.com", cc.Domain)
	assert.Equal(t, AuthKerberos, cc.Auth)
	assert.Equal(t, "svc-sync@contoso.com", cc.Username)
	assert.Equal(t, "/etc/sync.keytab", cc.KeytabPath)
	assert.Equal(t, 10*time.Second, cc.Timeout)
	assert.Equal(t, 2, cc.MaxConnections)
	assert.True(t, cc.TLSConfig.InsecureSkipVerify)
}
