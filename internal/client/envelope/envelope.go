// Package envelope encrypts arbitrary JSON-serializable documents under a
// key derived from the sync key, producing a models.Envelope.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"unicode/utf8"

	"github.com/atinyakov/SessionSync/internal/client/capability"
	"github.com/atinyakov/SessionSync/internal/models"
)

const (
	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 16
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
)

// ErrAuthenticationFailed is returned for every decryption failure. Wrong
// key, tampering and malformed content are deliberately indistinguishable.
var ErrAuthenticationFailed = errors.New("envelope: authentication failed")

// ErrInvalidText is returned by Encrypt when a string in the document is not
// valid UTF-8. JSON would replace such bytes, so the document could not be
// decrypted back unchanged.
var ErrInvalidText = errors.New("envelope: document contains invalid UTF-8")

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// Encrypt serializes doc to JSON and seals it with AES-256-GCM under a key
// derived from secret and a fresh salt. Salt and nonce are new on every call.
func Encrypt(doc any, secret string) (models.Envelope, error) {
	if err := checkText(reflect.ValueOf(doc), "document"); err != nil {
		return models.Envelope{}, err
	}
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return models.Envelope{}, fmt.Errorf("encode document: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return models.Envelope{}, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return models.Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := newAEAD(capability.DeriveKey(secret, salt))
	if err != nil {
		return models.Envelope{}, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return models.Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Decrypt opens env with a key derived from secret and decodes the JSON
// document into out. Any failure yields ErrAuthenticationFailed; out must
// be discarded in that case.
func Decrypt(env models.Envelope, secret string, out any) error {
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil || len(salt) == 0 {
		return ErrAuthenticationFailed
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != NonceSize {
		return ErrAuthenticationFailed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return ErrAuthenticationFailed
	}

	aead, err := newAEAD(capability.DeriveKey(secret, salt))
	if err != nil {
		return ErrAuthenticationFailed
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrAuthenticationFailed
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return ErrAuthenticationFailed
	}
	return nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}

// checkText reports the first string reachable from v that is not valid UTF-8.
func checkText(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return fmt.Errorf("%w: %s", ErrInvalidText, path)
		}
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			return checkText(v.Elem(), path)
		}
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return nil // []byte is base64-encoded.
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkText(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkText(iter.Key(), path+" key"); err != nil {
				return err
			}
			if err := checkText(iter.Value(), fmt.Sprintf("%s[%v]", path, iter.Key())); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := checkText(v.Field(i), path+"."+t.Field(i).Name); err != nil {
				return err
			}
		}
	}
	return nil
}
