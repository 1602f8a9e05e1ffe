package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// keySize is 32 bytes for AES-256
	keySize = 32
	// saltSize prefixes every passphrase-encrypted artifact
	saltSize = 32
	// pbkdf2Iterations follows the usual PBKDF2-SHA256 guidance
	pbkdf2Iterations = 100000
)

// EncryptionConfig selects whether and how artifacts are encrypted. Exactly
// one key source applies: a raw key from a file or environment variable, or a
// passphrase from which a key is derived per artifact.
type EncryptionConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	KeySource  string `yaml:"key_source" json:"key_source"` // "file", "env", or "passphrase"
	KeyPath    string `yaml:"key_path,omitempty" json:"key_path,omitempty"`
	KeyEnvVar  string `yaml:"key_env_var,omitempty" json:"key_env_var,omitempty"`
	Passphrase string `yaml:"-" json:"-"`
}

// Validate checks the encryption configuration
func (c *EncryptionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.KeySource {
	case "file":
		if c.KeyPath == "" {
			return fmt.Errorf("encryption key_source is file but key_path is empty")
		}
	case "env":
		if c.KeyEnvVar == "" {
			return fmt.Errorf("encryption key_source is env but key_env_var is empty")
		}
	case "passphrase":
		if c.Passphrase == "" {
			return fmt.Errorf("encryption key_source is passphrase but no passphrase was supplied")
		}
	default:
		return fmt.Errorf("invalid encryption key_source %q", c.KeySource)
	}
	return nil
}

// EncryptionManager encrypts and decrypts backup artifacts with AES-256-GCM.
// Passphrase mode stores the random PBKDF2 salt as the artifact prefix, so a
// passphrase alone is enough to decrypt later.
type EncryptionManager struct {
	config *EncryptionConfig
}

// NewEncryptionManager creates an encryption manager
func NewEncryptionManager(config *EncryptionConfig) *EncryptionManager {
	if config == nil {
		config = &EncryptionConfig{}
	}
	return &EncryptionManager{config: config}
}

// IsEnabled returns whether encryption is enabled
func (em *EncryptionManager) IsEnabled() bool {
	return em.config.Enabled
}

// Algorithm returns the encryption algorithm being used
func (em *EncryptionManager) Algorithm() string {
	if !em.config.Enabled {
		return "NONE"
	}
	return "AES-256-GCM"
}

// Encrypt seals an artifact. Layout: [salt?][nonce][ciphertext]. The salt is
// present only in passphrase mode.
func (em *EncryptionManager) Encrypt(data []byte) ([]byte, error) {
	if !em.config.Enabled {
		return data, nil
	}

	key, salt, err := em.encryptionKey(nil)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, NewEncryptionError("failed to generate nonce", err)
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	if len(salt) > 0 {
		return append(salt, sealed...), nil
	}
	return sealed, nil
}

// Decrypt reverses Encrypt
func (em *EncryptionManager) Decrypt(encrypted []byte) ([]byte, error) {
	if !em.config.Enabled {
		return encrypted, nil
	}

	var salt []byte
	if em.config.KeySource == "passphrase" {
		if len(encrypted) < saltSize {
			return nil, NewEncryptionError("encrypted data too short for salt", nil)
		}
		salt, encrypted = encrypted[:saltSize], encrypted[saltSize:]
	}

	key, _, err := em.encryptionKey(salt)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, NewEncryptionError("encrypted data too short", nil)
	}

	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewEncryptionError("failed to decrypt data", err)
	}

	return plaintext, nil
}

// encryptionKey resolves the key from the configured source. In passphrase
// mode a nil salt means derive a fresh one; the salt used is returned so it
// can be stored alongside the ciphertext.
func (em *EncryptionManager) encryptionKey(salt []byte) ([]byte, []byte, error) {
	switch em.config.KeySource {
	case "file":
		key, err := os.ReadFile(em.config.KeyPath)
		if err != nil {
			return nil, nil, NewEncryptionError("failed to read key file", err)
		}
		if len(key) != keySize {
			return nil, nil, NewEncryptionError("key file must contain 32 bytes for AES-256", nil)
		}
		return key, nil, nil

	case "env":
		hexKey := os.Getenv(em.config.KeyEnvVar)
		if hexKey == "" {
			return nil, nil, NewEncryptionError(fmt.Sprintf("environment variable %s not set", em.config.KeyEnvVar), nil)
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, nil, NewEncryptionError("failed to decode hex key from environment variable", err)
		}
		if len(key) != keySize {
			return nil, nil, NewEncryptionError("key from environment variable must be 32 bytes for AES-256", nil)
		}
		return key, nil, nil

	case "passphrase":
		if salt == nil {
			salt = make([]byte, saltSize)
			if _, err := io.ReadFull(rand.Reader, salt); err != nil {
				return nil, nil, NewEncryptionError("failed to generate salt", err)
			}
		}
		key := pbkdf2.Key([]byte(em.config.Passphrase), salt, pbkdf2Iterations, keySize, sha256.New)
		return key, salt, nil

	default:
		return nil, nil, NewEncryptionError(fmt.Sprintf("invalid key source %q", em.config.KeySource), nil)
	}
}

// GenerateKey generates a new random 256-bit encryption key
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, NewEncryptionError("failed to generate encryption key", err)
	}
	return key, nil
}

// SaveKeyToFile writes an encryption key with restricted permissions
func SaveKeyToFile(key []byte, path string) error {
	if len(key) != keySize {
		return NewEncryptionError("key must be 32 bytes for AES-256", nil)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return NewEncryptionError("failed to save key to file", err)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEncryptionError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, NewEncryptionError("failed to create GCM cipher", err)
	}
	return gcm, nil
}
