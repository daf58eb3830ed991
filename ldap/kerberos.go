package ldap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const (
	defaultKrb5Conf = "/etc/krb5.conf"
	defaultKeytab   = "/etc/krb5.keytab"
)

// kerberosBind authenticates conn through GSSAPI SASL against host.
func kerberosBind(conn *ldap.Conn, cfg *ConnectionConfig, host string) error {
	client, err := newGSSAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("kerberos client: %w", err)
	}
	defer client.Close()

	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	spn := cfg.ServiceSPN
	if spn == "" {
		spn = "ldap/" + host
	}

	if err := conn.GSSAPIBind(client, spn, ""); err != nil {
		return NewError("gssapi bind", "", err)
	}
	return nil
}

// newGSSAPIClient builds a Kerberos client from the first usable credential
// source: an explicit credential cache, the ambient cache, an explicit
// keytab, the system keytab, then a password.
func newGSSAPIClient(cfg *ConnectionConfig) (*gssapi.Client, error) {
	krb5Conf := cfg.Krb5ConfPath
	if krb5Conf == "" {
		krb5Conf = defaultKrb5Conf
	}

	username, realm := principalParts(cfg)
	disableFAST := krb5client.DisablePAFXFAST(true)

	if cfg.CCachePath != "" {
		return gssapi.NewClientFromCCache(cfg.CCachePath, krb5Conf, disableFAST)
	}
	if ccache := ambientCCache(); ccache != "" && fileExists(ccache) {
		return gssapi.NewClientFromCCache(ccache, krb5Conf, disableFAST)
	}

	if cfg.KeytabPath != "" {
		return gssapi.NewClientWithKeytab(username, realm, cfg.KeytabPath, krb5Conf, disableFAST)
	}
	if keytab := ambientKeytab(); fileExists(keytab) && username != "" {
		return gssapi.NewClientWithKeytab(username, realm, keytab, krb5Conf, disableFAST)
	}

	if cfg.Password != "" {
		return gssapi.NewClientWithPassword(username, realm, cfg.Password, krb5Conf, disableFAST)
	}

	return nil, fmt.Errorf("no kerberos credentials: need a credential cache, keytab or password")
}

// principalParts splits user@REALM credentials, preferring an explicit realm
// from the configuration. Realms are conventionally uppercase.
func principalParts(cfg *ConnectionConfig) (username, realm string) {
	username = cfg.Username
	realm = cfg.Realm
	if user, r, ok := strings.Cut(cfg.Username, "@"); ok {
		username = user
		if realm == "" {
			realm = r
		}
	}
	return username, strings.ToUpper(realm)
}

func ambientCCache() string {
	if env := os.Getenv("KRB5CCNAME"); env != "" {
		return strings.TrimPrefix(env, "FILE:")
	}
	return "/tmp/krb5cc_" + strconv.Itoa(os.Getuid())
}

func ambientKeytab() string {
	if env := os.Getenv("KRB5_KTNAME"); env != "" {
		return strings.TrimPrefix(env, "FILE:")
	}
	return defaultKeytab
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
