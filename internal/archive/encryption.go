package archive

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Key sources
const (
	KeySourceEnv        = "env"
	KeySourceFile       = "file"
	KeySourcePassphrase = "passphrase"
)

const (
	keySize          = 32
	saltSize         = 16
	noncePrefixSize  = 4
	pbkdf2Iterations = 100000

	// plaintext bytes sealed per chunk
	encryptChunkSize = 64 << 10
	finalChunkFlag   = 1 << 31
)

var encryptMagic = []byte("MHBENC1\x00")

const (
	kdfNone   byte = 0
	kdfPBKDF2 byte = 1
)

// EncryptionConfig defines encryption settings
type EncryptionConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	KeySource string `mapstructure:"key_source" yaml:"key_source"`
	KeyPath   string `mapstructure:"key_path" yaml:"key_path"`
	KeyEnvVar string `mapstructure:"key_env_var" yaml:"key_env_var"`

	// KeyRetriever overrides the configured key source
	KeyRetriever func() ([]byte, error) `mapstructure:"-" yaml:"-"`
}

// SetDefaults sets default values for encryption configuration
func (ec *EncryptionConfig) SetDefaults() {
	if ec.KeySource == "" {
		ec.KeySource = KeySourceEnv
	}
	if ec.KeyEnvVar == "" {
		ec.KeyEnvVar = "MYSQL_HOTBACKUP_ENCRYPTION_KEY"
	}
}

// Validate validates the EncryptionConfig
func (ec *EncryptionConfig) Validate() error {
	if !ec.Enabled || ec.KeyRetriever != nil {
		return nil
	}
	switch ec.KeySource {
	case KeySourceEnv, KeySourcePassphrase:
		if ec.KeyEnvVar == "" {
			return NewEncryptionError("key_env_var is required for key source "+ec.KeySource, nil)
		}
	case KeySourceFile:
		if ec.KeyPath == "" {
			return NewEncryptionError("key_path is required for key source file", nil)
		}
	default:
		return NewEncryptionError(fmt.Sprintf("invalid key source %q", ec.KeySource), nil)
	}
	return nil
}

// KeyManager handles encryption key operations
type KeyManager struct {
	config *EncryptionConfig
}

// NewKeyManager creates a new key manager
func NewKeyManager(config *EncryptionConfig) *KeyManager {
	return &KeyManager{config: config}
}

// GenerateKey generates a new 256-bit encryption key
func (km *KeyManager) GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, NewEncryptionError("failed to generate encryption key", err)
	}
	return key, nil
}

// GenerateKeyFromPassword derives a key from a password using PBKDF2
func (km *KeyManager) GenerateKeyFromPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)
}

// SaveKeyToFile writes a key, hex encoded, readable by the owner only
func (km *KeyManager) SaveKeyToFile(key []byte, path string) error {
	if err := km.ValidateKey(key); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return NewEncryptionError("failed to save key to file", err)
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		return NewEncryptionError("failed to save key to file", err)
	}
	return nil
}

// LoadKeyFromFile loads a hex encoded key from a file
func (km *KeyManager) LoadKeyFromFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEncryptionError("failed to read key from file", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, NewEncryptionError("key file is not hex encoded", err)
	}
	if err := km.ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadKeyFromEnv loads a hex encoded key from an environment variable
func (km *KeyManager) LoadKeyFromEnv(envVar string) ([]byte, error) {
	hexKey := os.Getenv(envVar)
	if hexKey == "" {
		return nil, NewEncryptionError(fmt.Sprintf("environment variable %s not set", envVar), nil)
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, NewEncryptionError("failed to decode hex key from environment variable", err)
	}
	if err := km.ValidateKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateKey validates that a key is suitable for AES-256
func (km *KeyManager) ValidateKey(key []byte) error {
	if len(key) != keySize {
		return NewEncryptionError("key must be 32 bytes for AES-256", nil)
	}

	allZeros, allOnes := true, true
	for _, b := range key {
		if b != 0 {
			allZeros = false
		}
		if b != 0xFF {
			allOnes = false
		}
	}
	if allZeros {
		return NewEncryptionError("key cannot be all zeros", nil)
	}
	if allOnes {
		return NewEncryptionError("key cannot be all ones", nil)
	}
	return nil
}

// resolveKey returns the key for a stream. With a passphrase the key is
// derived from salt, which is generated when nil.
func (km *KeyManager) resolveKey(salt []byte) (key []byte, kdf byte, usedSalt []byte, err error) {
	if km.config.KeyRetriever != nil {
		key, err = km.config.KeyRetriever()
		if err != nil {
			return nil, 0, nil, NewEncryptionError("failed to get encryption key", err)
		}
		return key, kdfNone, nil, km.ValidateKey(key)
	}

	switch km.config.KeySource {
	case KeySourceEnv:
		key, err = km.LoadKeyFromEnv(km.config.KeyEnvVar)
		return key, kdfNone, nil, err
	case KeySourceFile:
		key, err = km.LoadKeyFromFile(km.config.KeyPath)
		return key, kdfNone, nil, err
	case KeySourcePassphrase:
		passphrase := os.Getenv(km.config.KeyEnvVar)
		if passphrase == "" {
			return nil, 0, nil, NewEncryptionError(
				fmt.Sprintf("environment variable %s not set", km.config.KeyEnvVar), nil)
		}
		if salt == nil {
			salt = make([]byte, saltSize)
			if _, err := rand.Read(salt); err != nil {
				return nil, 0, nil, NewEncryptionError("failed to generate salt", err)
			}
		}
		return km.GenerateKeyFromPassword(passphrase, salt), kdfPBKDF2, salt, nil
	}
	return nil, 0, nil, NewEncryptionError(fmt.Sprintf("invalid key source %q", km.config.KeySource), nil)
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

// chunkNonce is the stream's random prefix followed by the chunk counter
func chunkNonce(prefix []byte, counter uint64) []byte {
	nonce := make([]byte, noncePrefixSize+8)
	copy(nonce, prefix)
	binary.BigEndian.PutUint64(nonce[noncePrefixSize:], counter)
	return nonce
}

func chunkAAD(final bool) []byte {
	if final {
		return []byte{1}
	}
	return []byte{0}
}

// NewEncryptWriter returns a writer that encrypts into w with AES-256-GCM.
// The stream is cut into chunks that are sealed one by one; the last chunk
// is marked so that truncation is detected. Close must be called.
func NewEncryptWriter(w io.Writer, config *EncryptionConfig) (io.WriteCloser, error) {
	key, kdf, salt, err := NewKeyManager(config).resolveKey(nil)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	prefix := make([]byte, noncePrefixSize)
	if _, err := rand.Read(prefix); err != nil {
		return nil, NewEncryptionError("failed to generate nonce", err)
	}

	var header bytes.Buffer
	header.Write(encryptMagic)
	header.WriteByte(kdf)
	if kdf == kdfPBKDF2 {
		header.Write(salt)
	}
	header.Write(prefix)
	if _, err := w.Write(header.Bytes()); err != nil {
		return nil, NewEncryptionError("failed to write encryption header", err)
	}

	return &encryptWriter{w: w, aead: gcm, prefix: prefix}, nil
}

type encryptWriter struct {
	w       io.Writer
	aead    cipher.AEAD
	prefix  []byte
	counter uint64
	buf     []byte
	closed  bool
}

func (e *encryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, NewEncryptionError("write to closed stream", nil)
	}
	e.buf = append(e.buf, p...)
	// the last chunk is held back until Close so it can be marked final
	for len(e.buf) > encryptChunkSize {
		if err := e.seal(e.buf[:encryptChunkSize], false); err != nil {
			return 0, err
		}
		e.buf = append(e.buf[:0], e.buf[encryptChunkSize:]...)
	}
	return len(p), nil
}

func (e *encryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.seal(e.buf, true)
}

func (e *encryptWriter) seal(plaintext []byte, final bool) error {
	sealed := e.aead.Seal(nil, chunkNonce(e.prefix, e.counter), plaintext, chunkAAD(final))
	e.counter++

	length := uint32(len(sealed))
	if final {
		length |= finalChunkFlag
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], length)
	if _, err := e.w.Write(lenBuf[:]); err != nil {
		return NewEncryptionError("failed to write chunk", err)
	}
	if _, err := e.w.Write(sealed); err != nil {
		return NewEncryptionError("failed to write chunk", err)
	}
	return nil
}

// NewDecryptReader returns a reader that decrypts a stream written by
// NewEncryptWriter
func NewDecryptReader(r io.Reader, config *EncryptionConfig) (io.Reader, error) {
	magic := make([]byte, len(encryptMagic)+1)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, NewEncryptionError("failed to read encryption header", err)
	}
	if !bytes.Equal(magic[:len(encryptMagic)], encryptMagic) {
		return nil, NewEncryptionError("not an encrypted archive", nil)
	}

	var salt []byte
	switch kdf := magic[len(encryptMagic)]; kdf {
	case kdfNone:
	case kdfPBKDF2:
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(r, salt); err != nil {
			return nil, NewEncryptionError("failed to read salt", err)
		}
	default:
		return nil, NewEncryptionError(fmt.Sprintf("unknown key derivation %d", kdf), nil)
	}

	km := NewKeyManager(config)
	key, kdf, _, err := km.resolveKey(salt)
	if err != nil {
		return nil, err
	}
	if (kdf == kdfPBKDF2) != (salt != nil) {
		return nil, NewEncryptionError("archive key source does not match the configured one", nil)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	prefix := make([]byte, noncePrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, NewEncryptionError("failed to read nonce", err)
	}

	return &decryptReader{r: r, aead: gcm, prefix: prefix}, nil
}

type decryptReader struct {
	r       io.Reader
	aead    cipher.AEAD
	prefix  []byte
	counter uint64
	buf     []byte
	done    bool
}

func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.buf) == 0 {
		if d.done {
			return 0, io.EOF
		}
		if err := d.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

func (d *decryptReader) next() error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return NewEncryptionError("failed to read chunk", ErrTruncated)
		}
		return NewEncryptionError("failed to read chunk", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	final := length&finalChunkFlag != 0
	length &^= finalChunkFlag
	if int(length) > encryptChunkSize+d.aead.Overhead() {
		return NewEncryptionError(fmt.Sprintf("chunk of %d bytes exceeds the limit", length), nil)
	}

	sealed := make([]byte, length)
	if _, err := io.ReadFull(d.r, sealed); err != nil {
		return NewEncryptionError("failed to read chunk", ErrTruncated)
	}

	plaintext, err := d.aead.Open(nil, chunkNonce(d.prefix, d.counter), sealed, chunkAAD(final))
	if err != nil {
		return NewEncryptionError("failed to decrypt data", err)
	}
	d.counter++
	d.buf = plaintext
	d.done = final
	return nil
}
