package secrets

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-tenant/core"
)

func TestAppKeyProvider_SealAndOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeyProvider([]byte("tenant-master-key"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	sealed, err := provider.Encrypt(ctx, []byte("postgres://user:pw@db/tenant"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !IsSealed(string(sealed)) {
		t.Fatalf("expected envelope prefix, got %q", sealed)
	}
	if strings.Contains(string(sealed), "user:pw") {
		t.Fatalf("plaintext credentials leaked into envelope")
	}

	opened, err := provider.Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(opened) != "postgres://user:pw@db/tenant" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestAppKeyProvider_RejectsForeignKeyID(t *testing.T) {
	ctx := context.Background()
	writer, err := NewAppKeyProvider([]byte("key-material"), WithKeyID("key-a"))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	reader, err := NewAppKeyProvider([]byte("key-material"), WithKeyID("key-b"))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}

	sealed, err := writer.Encrypt(ctx, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := reader.Decrypt(ctx, sealed); err == nil {
		t.Fatalf("expected key id mismatch")
	}
}

func TestAppKeyProvider_DerivesNonStandardKeyLengths(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeyProvider([]byte("short"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	sealed, err := provider.Encrypt(ctx, []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt with derived key: %v", err)
	}
	opened, err := provider.Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("decrypt with derived key: %v", err)
	}
	if string(opened) != "payload" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestSealDescriptor_ProtectsDSNOnly(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeyProvider([]byte("tenant-master-key"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	descriptor := core.ConnectionDescriptor{Driver: "postgres", DSN: "postgres://db/acme", Schema: "acme"}
	sealed, err := SealDescriptor(ctx, provider, descriptor)
	if err != nil {
		t.Fatalf("seal descriptor: %v", err)
	}
	if sealed.Driver != "postgres" || sealed.Schema != "acme" {
		t.Fatalf("non-secret fields must survive sealing: %+v", sealed)
	}
	if !IsSealed(sealed.DSN) {
		t.Fatalf("dsn must be sealed")
	}
	if _, err := SealDescriptor(ctx, provider, sealed); err == nil {
		t.Fatalf("double sealing must fail")
	}

	opened, err := OpenDescriptor(ctx, provider, sealed)
	if err != nil {
		t.Fatalf("open descriptor: %v", err)
	}
	if opened.DSN != "postgres://db/acme" {
		t.Fatalf("unexpected opened dsn %q", opened.DSN)
	}
}

func TestOpenDescriptor_PassesPlaintextThrough(t *testing.T) {
	descriptor := core.ConnectionDescriptor{Driver: "sqlite3", DSN: "file:plain.db"}
	opened, err := OpenDescriptor(context.Background(), nil, descriptor)
	if err != nil {
		t.Fatalf("open plaintext descriptor: %v", err)
	}
	if opened != descriptor {
		t.Fatalf("plaintext descriptors must pass through unchanged")
	}
}

func TestOpeningDescriptor_DecryptsForThePool(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeyProvider([]byte("tenant-master-key"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	sealed, err := SealDescriptor(ctx, provider, core.ConnectionDescriptor{Driver: "sqlite3", DSN: "file:enc.db"})
	if err != nil {
		t.Fatalf("seal descriptor: %v", err)
	}

	source := OpeningDescriptor(provider, func(context.Context, string) (core.ConnectionDescriptor, error) {
		return sealed, nil
	})
	descriptor, err := source(ctx, "ten_1")
	if err != nil {
		t.Fatalf("opening descriptor: %v", err)
	}
	if descriptor.DSN != "file:enc.db" {
		t.Fatalf("expected plaintext dsn for the pool, got %q", descriptor.DSN)
	}
}
