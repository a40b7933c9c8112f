package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const nonceSizeGCM = 12

// Hooks for tests.
var (
	defaultKeySource           = DefaultKeySource
	fileWriteFile              = os.WriteFile
	fileMarshal                = json.Marshal
	fileRandReader   io.Reader = rand.Reader
	fileCipherNewGCM           = cipher.NewGCM
)

// NewFileManager returns a SecretsManager that stores secrets in an AES-GCM encrypted file.
// The key is obtained from DefaultKeySource (passphrase env or machine-id).
func NewFileManager(path string) (SecretsManager, error) {
	key, err := defaultKeySource()
	if err != nil {
		return nil, err
	}
	return NewFileManagerWithKey(path, key)
}

// NewFileManagerWithKey returns a SecretsManager with an explicit 32-byte key.
func NewFileManagerWithKey(path string, key []byte) (SecretsManager, error) {
	if len(key) != 32 {
		return nil, errors.New("secrets: key must be 32 bytes")
	}
	return &fileManager{path: path, key: key}, nil
}

// fileManager keeps the whole secret map in one file: a 12-byte nonce followed
// by the sealed JSON object.
type fileManager struct {
	mu   sync.Mutex
	path string
	key  []byte
}

func (f *fileManager) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.readMap()
	if err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok || v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *fileManager) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.readMap()
	if err != nil {
		return err
	}
	m[key] = value
	return f.writeMap(m)
}

func (f *fileManager) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.readMap()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return f.writeMap(m)
}

// readMap returns the decrypted secrets. A missing file is an empty map.
func (f *fileManager) readMap() (map[string]string, error) {
	m := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("secrets read: %w", err)
	}
	if len(data) < nonceSizeGCM {
		return nil, errors.New("secrets file truncated")
	}
	gcm, err := f.aead()
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, data[:nonceSizeGCM], data[nonceSizeGCM:], nil)
	if err != nil {
		return nil, fmt.Errorf("secrets decrypt: %w", err)
	}
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("secrets parse: %w", err)
	}
	return m, nil
}

func (f *fileManager) writeMap(m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("secrets mkdir: %w", err)
	}
	plain, err := fileMarshal(m)
	if err != nil {
		return fmt.Errorf("secrets encode: %w", err)
	}
	gcm, err := f.aead()
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(fileRandReader, nonce); err != nil {
		return fmt.Errorf("secrets nonce: %w", err)
	}
	return fileWriteFile(f.path, gcm.Seal(nonce, nonce, plain, nil), 0600)
}

func (f *fileManager) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(f.key)
	if err != nil {
		return nil, fmt.Errorf("secrets cipher: %w", err)
	}
	gcm, err := fileCipherNewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets cipher: %w", err)
	}
	return gcm, nil
}
