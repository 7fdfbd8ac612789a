package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/pkg/crypto/adaptive"
)

// Key layout of the badger backend.
//
//	t/{token id}    -> record (JSON, optionally sealed)
//	s/{secret hash} -> token id
const (
	recordPrefix = "t/"
	secretPrefix = "s/"
)

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

func secretKey(hash string) []byte {
	return []byte(secretPrefix + hash)
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	// Dir is the storage directory.
	Dir string

	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// SyncWrites fsyncs after each write.
	SyncWrites bool

	// EncryptionKey, when set, seals every record at rest. Hex or base64 of
	// adaptive.KeySize bytes.
	EncryptionKey string

	// PageSize is the number of record keys scanned per listing batch.
	// Default: 256
	PageSize int
}

// DefaultBadgerConfig returns the default badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		PageSize:    256,
	}
}

// recordCodec turns records into stored values. With a cipher configured
// the JSON is sealed and bound to its key, so a value copied under another
// key fails to open.
type recordCodec struct {
	cipher adaptive.Cipher
}

func newRecordCodec(encryptionKey string) (recordCodec, error) {
	if encryptionKey == "" {
		return recordCodec{}, nil
	}
	key, err := adaptive.ParseKey(encryptionKey)
	if err != nil {
		return recordCodec{}, fmt.Errorf("encryption key: %w", err)
	}
	c, err := adaptive.New(key)
	if err != nil {
		return recordCodec{}, fmt.Errorf("encryption key: %w", err)
	}
	return recordCodec{cipher: c}, nil
}

func (c recordCodec) encode(key []byte, tok *domain.Token) ([]byte, error) {
	data, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if c.cipher == nil {
		return data, nil
	}
	return c.cipher.Seal(data, key)
}

func (c recordCodec) decode(key, value []byte) (*domain.Token, error) {
	if c.cipher != nil {
		plain, err := c.cipher.Open(value, key)
		if err != nil {
			return nil, fmt.Errorf("open record %s: %w", key, err)
		}
		value = plain
	}
	var tok domain.Token
	if err := json.Unmarshal(value, &tok); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return &tok, nil
}

func (c recordCodec) sealed() bool {
	return c.cipher != nil
}
