package models

import "fmt"

// BackendKind identifies which of the two supported query targets a
// session is bound to.
type BackendKind string

const (
	BackendSQL           BackendKind = "sql"
	BackendSemanticModel BackendKind = "semantic_model"
)

// QueryLanguage is the query dialect spoken by a backend.
type QueryLanguage string

const (
	LanguageTSQL QueryLanguage = "T-SQL"
	LanguageDAX  QueryLanguage = "DAX"
)

// LanguageFor returns the query language for a backend kind.
func LanguageFor(kind BackendKind) QueryLanguage {
	if kind == BackendSemanticModel {
		return LanguageDAX
	}
	return LanguageTSQL
}

// ConnectionIdentity identifies a backend connection. Schemas and cached
// queries are keyed by this tuple; changing any field invalidates both
// caches for the old identity.
type ConnectionIdentity struct {
	Kind     BackendKind `json:"kind"`
	Endpoint string      `json:"endpoint"`
	Database string      `json:"database"` // warehouse database or semantic model dataset
}

// Key returns a stable cache key for this identity.
func (c ConnectionIdentity) Key() string {
	return fmt.Sprintf("%s|%s|%s", c.Kind, c.Endpoint, c.Database)
}

// Validate checks the identity is complete enough to connect.
func (c ConnectionIdentity) Validate() error {
	switch c.Kind {
	case BackendSQL, BackendSemanticModel:
	default:
		return fmt.Errorf("unknown backend kind %q", c.Kind)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}
