package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrKeyNotFound = errors.New("key not found")

// KeyProvider resolves token verification keys by kid.
type KeyProvider interface {
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// DirectoryKeyProvider loads RSA verification keys from PEM files. The file name without its
// extension is the kid. Private key files contribute their public half.
type DirectoryKeyProvider struct {
	keys map[string]*rsa.PublicKey
}

// NewDirectoryKeyProvider reads every PEM file in keyDir.
func NewDirectoryKeyProvider(keyDir string) (*DirectoryKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	provider := &DirectoryKeyProvider{keys: make(map[string]*rsa.PublicKey)}

	for _, file := range files {
		if file.IsDir() || strings.HasPrefix(file.Name(), ".") {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		key, err := parseRSAPublicKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", path, err)
		}
		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		provider.keys[kid] = key
	}

	if len(provider.keys) == 0 {
		return nil, fmt.Errorf("no verification keys found in %s", keyDir)
	}

	return provider, nil
}

// NewStaticKeyProvider serves a fixed set of keys.
func NewStaticKeyProvider(keys map[string]*rsa.PublicKey) *DirectoryKeyProvider {
	copied := make(map[string]*rsa.PublicKey, len(keys))
	for kid, key := range keys {
		copied[kid] = key
	}
	return &DirectoryKeyProvider{keys: copied}
}

// GetVerificationKey returns the public key for kid.
func (p *DirectoryKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

func parseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// PKCS#1 private key (RSA PRIVATE KEY)
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &key.PublicKey, nil
	}

	// PKCS#8 private key (PRIVATE KEY)
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return &rsaKey.PublicKey, nil
		}
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
	}

	return nil, errors.New("unsupported key format")
}
