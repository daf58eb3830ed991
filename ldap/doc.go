// Package ldap is the directory access layer. It provides pooled
// connections with DNS SRV discovery, simple and Kerberos GSSAPI binds, a
// retrying operation client, value codecs for objectGUID and objectSid, and
// a connector-space implementation backed by a live directory.
//
// Connection pooling keeps a bounded set of authenticated connections and
// replaces them as they idle out or fail health probes. All operations
// accept a context and classify failures into categories callers can
// branch on without inspecting LDAP result codes.
package ldap
