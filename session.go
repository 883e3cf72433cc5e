package authflow

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
)

// DefaultSessionDuration is how long a remembered session cookie lives.
const DefaultSessionDuration = 7 * 24 * time.Hour

var errSessionInvalid = errors.New("invalid session payload", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// SessionObject is the record persisted in the session cookie: the identity
// token to re-verify on each request, whether the session should outlive the
// browser, and at most one pending flash notification.
type SessionObject struct {
	IDToken      string `json:"t"`
	Remember     bool   `json:"r,omitempty"`
	Notification string `json:"n,omitempty"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// SessionCodec seals session records into opaque cookie values and back.
type SessionCodec interface {
	Encode(session *SessionObject) (string, error)
	Decode(value string) (*SessionObject, error)
}

// EncryptedSessionCodec is an AES-GCM encrypting, HMAC-SHA256 signing codec.
// Decode treats every malformed, forged, or expired value as errSessionInvalid
// without distinguishing why, so callers can safely degrade to "no session".
type EncryptedSessionCodec struct {
	encryptionKey []byte
	hmacKey       []byte
	ttl           time.Duration
}

// NewEncryptedSessionCodec builds a codec. The encryption key must be a valid
// AES key length (16, 24, or 32 bytes); a zero ttl defaults to seven days.
func NewEncryptedSessionCodec(encryptionKey, hmacKey []byte, ttl time.Duration) *EncryptedSessionCodec {
	if ttl == 0 {
		ttl = DefaultSessionDuration
	}
	return &EncryptedSessionCodec{
		encryptionKey: encryptionKey,
		hmacKey:       hmacKey,
		ttl:           ttl,
	}
}

// Encode encrypts and signs the session record.
func (c *EncryptedSessionCodec) Encode(session *SessionObject) (string, error) {
	if session == nil || session.IDToken == "" {
		return "", errSessionInvalid
	}

	if session.IssuedAt == 0 {
		session.IssuedAt = time.Now().Unix()
	}
	if session.ExpiresAt == 0 {
		session.ExpiresAt = time.Now().Add(c.ttl).Unix()
	}

	plaintext, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	block, err := aes.NewCipher(c.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	mac := hmac.New(sha256.New, c.hmacKey)
	mac.Write(ciphertext)
	signature := mac.Sum(nil)

	result := append(signature, ciphertext...)

	return base64.URLEncoding.EncodeToString(result), nil
}

// Decode verifies and decrypts a cookie value.
func (c *EncryptedSessionCodec) Decode(value string) (*SessionObject, error) {
	data, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, errSessionInvalid
	}

	if len(data) < sha256.Size {
		return nil, errSessionInvalid
	}

	signature := data[:sha256.Size]
	ciphertext := data[sha256.Size:]

	mac := hmac.New(sha256.New, c.hmacKey)
	mac.Write(ciphertext)
	expectedMAC := mac.Sum(nil)

	if !hmac.Equal(signature, expectedMAC) {
		return nil, errSessionInvalid
	}

	block, err := aes.NewCipher(c.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errSessionInvalid
	}

	nonce, encrypted := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, errSessionInvalid
	}

	var session SessionObject
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, errSessionInvalid
	}

	if session.IDToken == "" {
		return nil, errSessionInvalid
	}

	if time.Now().Unix() > session.ExpiresAt {
		return nil, errSessionInvalid
	}

	return &session, nil
}
