// Package dirsync synchronizes identities across directory domains. A
// canonical record represents one identity in domain-independent form;
// connector spaces hold its staged representation per domain. The engine
// reconciles canonical records into target connectors, translates attribute
// values through a configured converter pipeline, and decides when a
// disappearing connector record deletes its canonical record.
//
// The host runtime drives the engine through the SynchronizationCore
// interface, delivering one canonical-record event at a time. Configuration
// is a TOML document loaded once and shared read-only. Connector spaces are
// served in memory (package record) for hosts that stage records themselves,
// or from a live directory (package ldap) for connectors configured with
// connection settings.
package dirsync
