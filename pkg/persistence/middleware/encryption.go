package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/braid/pkg/domain"
	"github.com/aretw0/braid/pkg/ports"
)

// EncryptedMarker is the metadata key flagging a sealed message.
const EncryptedMarker = "__encrypted__"

// ErrNotEncrypted is returned when a stored message lacks an envelope.
var ErrNotEncrypted = errors.New("message is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are older keys tried when the active key cannot open a
	// message, so keys can be rotated without rewriting history.
	FallbackKeys [][]byte
}

// Validate checks key sizes.
func (c EncryptionConfig) Validate() error {
	if len(c.ActiveKey) != 32 {
		return fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(c.ActiveKey))
	}
	for i, k := range c.FallbackKeys {
		if len(k) != 32 {
			return fmt.Errorf("fallback key %d must be 32 bytes, got %d", i, len(k))
		}
	}
	return nil
}

// sealed is what gets encrypted; the role stays visible for tooling.
type sealed struct {
	Content  string         `json:"content"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type encryptionMiddleware struct {
	admin
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals message content,
// name and metadata with AES-GCM. It panics on invalid keys; call
// EncryptionConfig.Validate first when keys come from user input.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if err := config.Validate(); err != nil {
		panic(err.Error())
	}
	return func(next ports.HistoryStore) ports.HistoryStore {
		return &encryptionMiddleware{admin: admin{next: next}, config: config}
	}
}

func (m *encryptionMiddleware) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	envelopes := make([]domain.Message, len(msgs))
	for i, msg := range msgs {
		plainText, err := json.Marshal(sealed{Content: msg.Content, Name: msg.Name, Metadata: msg.Metadata})
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		ciphertext, err := encrypt(plainText, m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt message: %w", err)
		}
		envelopes[i] = domain.Message{
			Role:      msg.Role,
			Content:   base64.StdEncoding.EncodeToString(ciphertext),
			Metadata:  map[string]any{EncryptedMarker: true},
			CreatedAt: msg.CreatedAt,
		}
	}
	return m.next.Append(ctx, sessionID, envelopes...)
}

func (m *encryptionMiddleware) Get(ctx context.Context, sessionID string) ([]domain.Message, error) {
	envelopes, err := m.next.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, len(envelopes))
	for i, env := range envelopes {
		// Fail secure: plain messages are rejected once encryption is on.
		if flag, _ := env.Metadata[EncryptedMarker].(bool); !flag {
			return nil, fmt.Errorf("message %d: %w", i, ErrNotEncrypted)
		}
		ciphertext, err := base64.StdEncoding.DecodeString(env.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}
		plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message %d: %w", i, err)
		}
		var body sealed
		if err := json.Unmarshal(plainText, &body); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted message: %w", err)
		}
		out[i] = domain.Message{
			Role:      env.Role,
			Content:   body.Content,
			Name:      body.Name,
			Metadata:  body.Metadata,
			CreatedAt: env.CreatedAt,
		}
	}
	return out, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
