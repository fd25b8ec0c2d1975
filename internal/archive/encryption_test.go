package archive

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := NewKeyManager(&EncryptionConfig{}).GenerateKey()
	require.NoError(t, err)
	return key
}

func staticKeyConfig(key []byte) *EncryptionConfig {
	return &EncryptionConfig{
		Enabled:      true,
		KeyRetriever: func() ([]byte, error) { return key, nil },
	}
}

func encrypt(t *testing.T, config *EncryptionConfig, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewEncryptWriter(&buf, config)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func decrypt(config *EncryptionConfig, data []byte) ([]byte, error) {
	r, err := NewDecryptReader(bytes.NewReader(data), config)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func TestEncryption_RoundTrip(t *testing.T) {
	config := staticKeyConfig(testKey(t))

	sizes := []int{0, 1, encryptChunkSize - 1, encryptChunkSize, encryptChunkSize + 1, 3*encryptChunkSize + 17}
	for _, size := range sizes {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)

		sealed := encrypt(t, config, data)

		out, err := decrypt(config, sealed)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, data, out, "size %d", size)
	}
}

func TestEncryption_WrongKey(t *testing.T) {
	sealed := encrypt(t, staticKeyConfig(testKey(t)), []byte("ibdata1 contents"))

	_, err := decrypt(staticKeyConfig(testKey(t)), sealed)
	require.Error(t, err)
	assert.True(t, IsEncryptionError(err))
}

func TestEncryption_Truncated(t *testing.T) {
	config := staticKeyConfig(testKey(t))
	data := make([]byte, 2*encryptChunkSize+100)
	sealed := encrypt(t, config, data)

	// drop the final chunk entirely
	cut := len(sealed) - (100 + 16 + 4)
	_, err := decrypt(config, sealed[:cut])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestEncryption_Tampered(t *testing.T) {
	config := staticKeyConfig(testKey(t))
	sealed := encrypt(t, config, []byte("binlog events"))
	sealed[len(sealed)-1] ^= 0xFF

	_, err := decrypt(config, sealed)
	assert.Error(t, err)
}

func TestEncryption_NotEncrypted(t *testing.T) {
	_, err := decrypt(staticKeyConfig(testKey(t)), []byte("plain tar data that is long enough"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an encrypted archive")
}

func TestEncryption_Passphrase(t *testing.T) {
	t.Setenv("TEST_BACKUP_PASSPHRASE", "correct horse battery staple")
	config := &EncryptionConfig{Enabled: true, KeySource: KeySourcePassphrase, KeyEnvVar: "TEST_BACKUP_PASSPHRASE"}

	sealed := encrypt(t, config, []byte("tokudb log"))
	out, err := decrypt(config, sealed)
	require.NoError(t, err)
	assert.Equal(t, "tokudb log", string(out))

	t.Setenv("TEST_BACKUP_PASSPHRASE", "wrong")
	_, err = decrypt(config, sealed)
	assert.Error(t, err)
}

func TestEncryption_KeySourceMismatch(t *testing.T) {
	t.Setenv("TEST_BACKUP_PASSPHRASE", "secret")
	passphrase := &EncryptionConfig{Enabled: true, KeySource: KeySourcePassphrase, KeyEnvVar: "TEST_BACKUP_PASSPHRASE"}

	sealed := encrypt(t, staticKeyConfig(testKey(t)), []byte("data"))
	_, err := decrypt(passphrase, sealed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestKeyManager_EnvKey(t *testing.T) {
	key := testKey(t)
	t.Setenv("TEST_BACKUP_KEY", hex.EncodeToString(key))

	km := NewKeyManager(&EncryptionConfig{})
	loaded, err := km.LoadKeyFromEnv("TEST_BACKUP_KEY")
	require.NoError(t, err)
	assert.Equal(t, key, loaded)

	_, err = km.LoadKeyFromEnv("TEST_BACKUP_KEY_UNSET")
	assert.Error(t, err)

	t.Setenv("TEST_BACKUP_KEY", "not-hex")
	_, err = km.LoadKeyFromEnv("TEST_BACKUP_KEY")
	assert.Error(t, err)
}

func TestKeyManager_FileKey(t *testing.T) {
	km := NewKeyManager(&EncryptionConfig{})
	key := testKey(t)
	path := filepath.Join(t.TempDir(), "backup.key")

	require.NoError(t, km.SaveKeyToFile(key, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := km.LoadKeyFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, key, loaded)

	assert.Error(t, km.SaveKeyToFile(key, path), "an existing key file is never overwritten")

	config := &EncryptionConfig{Enabled: true, KeySource: KeySourceFile, KeyPath: path}
	out, err := decrypt(config, encrypt(t, config, []byte("redo log")))
	require.NoError(t, err)
	assert.Equal(t, "redo log", string(out))
}

func TestKeyManager_ValidateKey(t *testing.T) {
	km := NewKeyManager(&EncryptionConfig{})

	assert.Error(t, km.ValidateKey(make([]byte, 16)))
	assert.Error(t, km.ValidateKey(make([]byte, 32)))
	assert.Error(t, km.ValidateKey(bytes.Repeat([]byte{0xFF}, 32)))
	assert.NoError(t, km.ValidateKey(testKey(t)))
}

func TestKeyManager_GenerateKeyFromPassword(t *testing.T) {
	km := NewKeyManager(&EncryptionConfig{})
	salt := []byte("0123456789abcdef")

	a := km.GenerateKeyFromPassword("secret", salt)
	b := km.GenerateKeyFromPassword("secret", salt)
	c := km.GenerateKeyFromPassword("secret", []byte("fedcba9876543210"))

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEncryptionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  EncryptionConfig
		wantErr bool
	}{
		{"disabled", EncryptionConfig{}, false},
		{"env", EncryptionConfig{Enabled: true, KeySource: KeySourceEnv, KeyEnvVar: "KEY"}, false},
		{"env without variable", EncryptionConfig{Enabled: true, KeySource: KeySourceEnv}, true},
		{"file without path", EncryptionConfig{Enabled: true, KeySource: KeySourceFile}, true},
		{"unknown source", EncryptionConfig{Enabled: true, KeySource: "vault"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
