package database

import (
	"context"
	"fmt"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	postgresProfileWriter   func() ProfileWriter
	postgresCredentialStore func() CredentialStore
	postgresSessionStore    func() SessionStore
	postgresProfileHNSW     HNSWRebuilder // Singleton for identity HNSW rebuilding
	postgresInitialized     bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	profiles func() ProfileWriter,
	credentials func() CredentialStore,
	sessions func() SessionStore,
) {
	postgresProfileWriter = profiles
	postgresCredentialStore = credentials
	postgresSessionStore = sessions
	postgresInitialized = true
}

// RegisterProfileHNSWRebuilder registers the HNSW rebuilder for the profile repository.
func RegisterProfileHNSWRebuilder(rebuilder HNSWRebuilder) {
	postgresProfileHNSW = rebuilder
}

// GetProfileHNSWRebuilder returns the registered profile HNSW rebuilder, or nil if not registered.
func GetProfileHNSWRebuilder() HNSWRebuilder {
	return postgresProfileHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetProfileReader returns a ProfileReader from the PostgreSQL backend
func GetProfileReader(ctx context.Context) (ProfileReader, error) {
	return GetProfileWriter(ctx)
}

// GetProfileWriter returns a ProfileWriter from the PostgreSQL backend
func GetProfileWriter(ctx context.Context) (ProfileWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresProfileWriter == nil {
		return nil, fmt.Errorf("PostgreSQL profile repository not registered")
	}
	return postgresProfileWriter(), nil
}

// GetCredentialStore returns a CredentialStore from the PostgreSQL backend
func GetCredentialStore(ctx context.Context) (CredentialStore, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresCredentialStore == nil {
		return nil, fmt.Errorf("PostgreSQL credential store not registered")
	}
	return postgresCredentialStore(), nil
}

// GetSessionStore returns a SessionStore from the PostgreSQL backend
func GetSessionStore(ctx context.Context) (SessionStore, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresSessionStore == nil {
		return nil, fmt.Errorf("PostgreSQL session store not registered")
	}
	return postgresSessionStore(), nil
}
