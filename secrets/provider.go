package secrets

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Tenant connection strings carry credentials, so the tenant store never
// holds them in the clear. A DSN at rest is an envelope: a versioned JSON
// blob sealed with AES-256-GCM under an application key.
const envelopePrefix = "tenant.secret.v1:"

// Provider seals and opens secret material. The app-key implementation
// below covers single-key deployments; KMS-backed providers satisfy the
// same contract.
type Provider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type sealedEnvelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// IsSealed reports whether a value carries the envelope prefix and so needs
// a Provider to read.
func IsSealed(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), envelopePrefix)
}

type AppKeyProvider struct {
	key     []byte
	keyID   string
	version int
}

type Option func(*AppKeyProvider)

func WithKeyID(id string) Option {
	return func(p *AppKeyProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			p.keyID = trimmed
		}
	}
}

func WithKeyVersion(version int) Option {
	return func(p *AppKeyProvider) {
		if version > 0 {
			p.version = version
		}
	}
}

// NewAppKeyProvider derives an AES-256 key from arbitrary key material.
// Material that is already 16, 24, or 32 bytes is used verbatim; anything
// else is hashed down to 32 bytes.
func NewAppKeyProvider(keyMaterial []byte, opts ...Option) (*AppKeyProvider, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return nil, fmt.Errorf("secrets: key material is required")
	}
	provider := &AppKeyProvider{
		key:     deriveKey(material),
		keyID:   "app-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func (p *AppKeyProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("secrets: provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("secrets: plaintext is required")
	}
	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secrets: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	encoded, err := json.Marshal(sealedEnvelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  "aes-256-gcm",
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), encoded...), nil
}

func (p *AppKeyProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("secrets: provider is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("secrets: ciphertext is required")
	}

	payload := strings.TrimPrefix(string(ciphertext), envelopePrefix)
	var parsed sealedEnvelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("secrets: decode envelope: %w", err)
	}
	if parsed.KeyID != "" && parsed.KeyID != p.keyID {
		return nil, fmt.Errorf("secrets: key id mismatch: got %q want %q", parsed.KeyID, p.keyID)
	}
	if parsed.Version > 0 && parsed.Version != p.version {
		return nil, fmt.Errorf("secrets: key version mismatch: got %d want %d", parsed.Version, p.version)
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode ciphertext: %w", err)
	}

	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeyProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeyProvider) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, fmt.Errorf("secrets: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: create gcm: %w", err)
	}
	return gcm, nil
}

func deriveKey(material []byte) []byte {
	switch len(material) {
	case 16, 24, 32:
		key := make([]byte, len(material))
		copy(key, material)
		return key
	}
	sum := sha256.Sum256(material)
	return sum[:]
}

var _ Provider = (*AppKeyProvider)(nil)
