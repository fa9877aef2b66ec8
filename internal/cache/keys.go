// Package cache implements the tenant cache service: tenant-isolated
// operations with quota enforcement, compression, tag indexing and eviction.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/staylink/tenantcache/internal/types"
)

// maxRawKeyLength is the longest application key embedded verbatim in a
// backing-store key. Longer keys are replaced by their SHA-256 hex digest.
// The transform is lossy but collision-resistant and must stay stable across
// implementations.
const maxRawKeyLength = 200

// KeyBuilder constructs backing-store keys in the form
// {prefix}:tenant:{tenant_id}:{namespace}:{key}.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a key builder with the given global prefix.
func NewKeyBuilder(prefix string) KeyBuilder {
	return KeyBuilder{prefix: prefix}
}

// Build returns the backing-store key for a tenant/namespace/key triple.
func (b KeyBuilder) Build(tenantID string, ns types.Namespace, key string) string {
	if len(key) > maxRawKeyLength {
		sum := sha256.Sum256([]byte(key))
		key = hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("%s:tenant:%s:%s:%s", b.prefix, tenantID, ns, key)
}

// TenantPattern returns a glob matching every key owned by a tenant.
func (b KeyBuilder) TenantPattern(tenantID string) string {
	return fmt.Sprintf("%s:tenant:%s:*", b.prefix, tenantID)
}

// NamespacePattern returns a glob matching a tenant's keys in one namespace.
func (b KeyBuilder) NamespacePattern(tenantID string, ns types.Namespace) string {
	return fmt.Sprintf("%s:tenant:%s:%s:*", b.prefix, tenantID, ns)
}

// AllTenantsNamespacePattern returns a glob matching one namespace across
// every tenant.
func (b KeyBuilder) AllTenantsNamespacePattern(ns types.Namespace) string {
	return fmt.Sprintf("%s:tenant:*:%s:*", b.prefix, ns)
}

// GlobalPattern returns a glob matching every key under the global prefix.
func (b KeyBuilder) GlobalPattern() string {
	return b.prefix + ":*"
}

// ConfigKey returns the backing-store key holding a tenant's resolved
// cache configuration.
func (b KeyBuilder) ConfigKey(tenantID string) string {
	return fmt.Sprintf("%s:tenant-config:%s", b.prefix, tenantID)
}
