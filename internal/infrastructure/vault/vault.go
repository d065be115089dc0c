// Package vault seals sensitive columns (bank account numbers, webhook secrets)
// with NaCl secretbox before they reach the database.
package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm/schema"
)

const nonceSize = 24

var (
	ErrNoSealer = errors.New("vault: no sealer configured")
	ErrCorrupt  = errors.New("vault: sealed value is corrupt")
	active      atomic.Pointer[Sealer]
)

func init() { schema.RegisterSerializer("sealed", Serializer{}) }

type Sealer struct{ key [32]byte }

// NewSealer derives a 32-byte key from arbitrary key material.
func NewSealer(material string) (*Sealer, error) {
	if len(material) < 16 {
		return nil, errors.New("vault: key material must be at least 16 bytes")
	}
	return &Sealer{key: sha256.Sum256([]byte(material))}, nil
}

func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrCorrupt
	}
	return string(plain), nil
}

// Use installs the process-wide sealer read by the gorm serializer.
func Use(s *Sealer) { active.Store(s) }

// Serializer implements gorm's `serializer:sealed` for string fields.
// It is stateless; gorm may instantiate fresh copies per row.
type Serializer struct{}

func (Serializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	var sealed string
	switch v := dbValue.(type) {
	case nil:
	case []byte:
		sealed = string(v)
	case string:
		sealed = v
	default:
		return fmt.Errorf("vault: unsupported column type %T", dbValue)
	}
	plain := ""
	if sealed != "" {
		s := active.Load()
		if s == nil {
			return ErrNoSealer
		}
		var err error
		if plain, err = s.Open(sealed); err != nil {
			return err
		}
	}
	field.ReflectValueOf(ctx, dst).SetString(plain)
	return nil
}

func (Serializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	plain, _ := fieldValue.(string)
	if plain == "" {
		return "", nil
	}
	s := active.Load()
	if s == nil {
		return nil, ErrNoSealer
	}
	return s.Seal(plain)
}
