// Package secure keeps short-lived credentials such as the Dataform API key
// and the git token encrypted in memory between retrieval and use.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed Value is opened.
var ErrDestroyed = errors.New("secure value has been destroyed")

// Value holds a secret inside a memguard enclave. The zero value and nil
// both behave as an empty secret.
type Value struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	empty     bool
	destroyed bool
}

// NewValue seals data into an enclave. memguard wipes the source slice.
func NewValue(data []byte) *Value {
	if len(data) == 0 {
		return &Value{empty: true}
	}
	return &Value{enclave: memguard.NewEnclave(data)}
}

// FromString seals a copy of s.
func FromString(s string) *Value {
	return NewValue([]byte(s))
}

// Empty reports whether the value holds no secret.
func (v *Value) Empty() bool {
	if v == nil {
		return true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.empty || v.enclave == nil
}

// Use decrypts the secret for the duration of fn. The plaintext buffer is
// wiped when fn returns and must not be retained.
func (v *Value) Use(fn func(plaintext []byte) error) error {
	if v == nil {
		return fn(nil)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.destroyed {
		return ErrDestroyed
	}
	if v.empty || v.enclave == nil {
		return fn(nil)
	}

	locked, err := v.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Reveal returns the secret as a string. Needed where an API insists on a
// string (HTTP headers, basic auth); keep the result on the stack.
func (v *Value) Reveal() (string, error) {
	var out string
	err := v.Use(func(b []byte) error {
		out = string(b)
		return nil
	})
	return out, err
}

// Destroy drops the enclave. Safe to call more than once.
func (v *Value) Destroy() {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enclave = nil
	v.destroyed = true
}

// Purge wipes every memguard buffer in the process. Call once from main.
func Purge() {
	memguard.Purge()
}
