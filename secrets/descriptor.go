package secrets

import (
	"context"
	"fmt"

	"github.com/goliatone/go-tenant/core"
	"github.com/goliatone/go-tenant/pool"
)

// SealDescriptor encrypts the DSN inside a connection descriptor so the
// tenant record can be persisted without plaintext credentials. Sealing an
// already-sealed descriptor is an error.
func SealDescriptor(ctx context.Context, provider Provider, descriptor core.ConnectionDescriptor) (core.ConnectionDescriptor, error) {
	if provider == nil {
		return core.ConnectionDescriptor{}, fmt.Errorf("secrets: provider is required")
	}
	if descriptor.Empty() {
		return core.ConnectionDescriptor{}, fmt.Errorf("secrets: descriptor is incomplete")
	}
	if IsSealed(descriptor.DSN) {
		return core.ConnectionDescriptor{}, fmt.Errorf("secrets: descriptor dsn is already sealed")
	}
	sealed, err := provider.Encrypt(ctx, []byte(descriptor.DSN))
	if err != nil {
		return core.ConnectionDescriptor{}, err
	}
	descriptor.DSN = string(sealed)
	return descriptor, nil
}

// OpenDescriptor decrypts a sealed DSN. Descriptors that were never sealed
// pass through untouched so mixed fleets keep working during migration.
func OpenDescriptor(ctx context.Context, provider Provider, descriptor core.ConnectionDescriptor) (core.ConnectionDescriptor, error) {
	if !IsSealed(descriptor.DSN) {
		return descriptor, nil
	}
	if provider == nil {
		return core.ConnectionDescriptor{}, fmt.Errorf("secrets: provider is required for sealed descriptors")
	}
	plaintext, err := provider.Decrypt(ctx, []byte(descriptor.DSN))
	if err != nil {
		return core.ConnectionDescriptor{}, err
	}
	descriptor.DSN = string(plaintext)
	return descriptor, nil
}

// OpeningDescriptor wraps a descriptor source so the pool manager always
// sees plaintext DSNs regardless of how they are stored.
func OpeningDescriptor(provider Provider, next pool.DescriptorFunc) pool.DescriptorFunc {
	return func(ctx context.Context, tenantID string) (core.ConnectionDescriptor, error) {
		if next == nil {
			return core.ConnectionDescriptor{}, fmt.Errorf("secrets: descriptor source is required")
		}
		descriptor, err := next(ctx, tenantID)
		if err != nil {
			return core.ConnectionDescriptor{}, err
		}
		return OpenDescriptor(ctx, provider, descriptor)
	}
}
