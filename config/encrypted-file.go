package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/relloyd/openetl/helper"
)

var (
	fileEncrKey = []byte("Qm#4tZ8v!pL2rW9x^cN6bH1s&dF7gJ3k")
)

var envVarEncryptionKey = helper.EnvVarName("CONFIG", "KEY")

// EncryptedFile stores bytes on disk using AES-GCM, base64 encoded.
type EncryptedFile struct {
	Dirname  string
	FileName string
	FullPath string
	key      []byte
}

// NewEncryptedFile returns an EncryptedFile in dirName.
// The key may be overridden with a 32 byte value in environment variable OETL_CONFIG_KEY.
func NewEncryptedFile(dirName string, filename string) *EncryptedFile {
	key := fileEncrKey
	if k := os.Getenv(envVarEncryptionKey); len(k) == 32 {
		key = []byte(k)
	}
	return &EncryptedFile{Dirname: dirName, FileName: filename, FullPath: path.Join(dirName, filename), key: key}
}

// Set encrypts text and writes it to the file, creating the directory if required.
func (f *EncryptedFile) Set(text []byte) error {
	sealed, err := Encrypt(text, f.key)
	if err != nil {
		return err
	}
	if err := makeDir(f.Dirname); err != nil {
		return err
	}
	return os.WriteFile(f.FullPath, []byte(base64.StdEncoding.EncodeToString(sealed)), 0600)
}

// Get reads and decrypts the file.
// FileNotFoundError is returned if the file does not exist.
func (f *EncryptedFile) Get() ([]byte, error) {
	if !fileExists(f.FullPath) {
		return nil, FileNotFoundError{f.FullPath}
	}
	b64, err := os.ReadFile(f.FullPath)
	if err != nil {
		return nil, err
	}
	cipherText, err := base64.StdEncoding.DecodeString(string(b64))
	if err != nil {
		return nil, fmt.Errorf("config file %v is corrupt: %w", f.FullPath, err)
	}
	return Decrypt(cipherText, f.key)
}

// Encrypt seals text with AES-GCM using a random nonce that prefixes the output.
func Encrypt(text []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, text, nil), nil
}

// Decrypt opens text produced by Encrypt.
func Decrypt(text []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(text) < nonceSize {
		return nil, fmt.Errorf("encrypted text is too short")
	}
	nonce, cipherText := text[:nonceSize], text[nonceSize:]
	return gcm.Open(nil, nonce, cipherText, nil)
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
