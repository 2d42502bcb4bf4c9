// Package crypto provides wallet key storage, EIP-712 signing and HMAC
// request signing for the CLOB API.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrNoKey is returned when no wallet key source is configured. The service
// still starts, with trading disabled.
var ErrNoKey = errors.New("crypto: no wallet key configured")

const (
	pbkdf2Iterations = 480_000
	keystoreSaltLen  = 16
	aesKeyLen        = 32
	keystoreVersion  = 1
)

// keystoreFile is the on-disk format of a sealed wallet key.
type keystoreFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where the wallet key comes from. A raw key wins over a
// keystore file.
type KeySource struct {
	RawPrivateKey string
	KeystorePath  string
	Password      string
}

// Configured reports whether any key source is set.
func (k KeySource) Configured() bool {
	return k.RawPrivateKey != "" || k.KeystorePath != ""
}

// SealKey encrypts a hex private key with PBKDF2-HMAC-SHA256 and AES-256-GCM
// and returns the keystore JSON.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto/keystore: password must not be empty")
	}
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto/keystore: expected 32-byte key, got %d bytes", len(keyBytes))
	}
	signer, err := NewSigner(hex.EncodeToString(keyBytes), 0)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, keystoreSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto/keystore: generating salt: %w", err)
	}
	gcm, err := keystoreCipher(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto/keystore: generating nonce: %w", err)
	}

	return json.MarshalIndent(keystoreFile{
		Version:    keystoreVersion,
		Address:    signer.Address().Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// OpenKey decrypts keystore JSON produced by SealKey and returns the hex key
// without 0x prefix.
func OpenKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto/keystore: password must not be empty")
	}

	var stored keystoreFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", fmt.Errorf("crypto/keystore: parsing keystore: %w", err)
	}
	if stored.Version != keystoreVersion {
		return "", fmt.Errorf("crypto/keystore: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto/keystore: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto/keystore: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto/keystore: decoding ciphertext: %w", err)
	}

	gcm, err := keystoreCipher(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto/keystore: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// WriteKeystore seals privateKeyHex and writes it to path with 0600 permissions.
func WriteKeystore(path, privateKeyHex, password string) error {
	data, err := SealKey(privateKeyHex, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("crypto/keystore: writing %s: %w", path, err)
	}
	return nil
}

// LoadSigner resolves the wallet key from src and builds a Signer for chainID.
// It returns ErrNoKey when src is empty.
func LoadSigner(src KeySource, chainID int64) (*Signer, error) {
	switch {
	case src.RawPrivateKey != "":
		return NewSigner(src.RawPrivateKey, chainID)
	case src.KeystorePath != "":
		data, err := os.ReadFile(src.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("crypto/keystore: reading %s: %w", src.KeystorePath, err)
		}
		key, err := OpenKey(data, src.Password)
		if err != nil {
			return nil, err
		}
		return NewSigner(key, chainID)
	default:
		return nil, ErrNoKey
	}
}

func keystoreCipher(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: creating GCM: %w", err)
	}
	return gcm, nil
}
