package storage

import (
	"fmt"

	"github.com/astriaorg/astria-sequencer/pkg/storedvalue"
)

// GetValue reads and decodes the variant T under key. found is false if the
// key is absent.
func GetValue[T storedvalue.Value](r Reader, key string) (value T, found bool, err error) {
	bz, err := r.Get(key)
	if err != nil {
		return value, false, err
	}
	if bz == nil {
		return value, false, nil
	}
	value, err = storedvalue.Deserialize[T](bz)
	if err != nil {
		return value, false, fmt.Errorf("decoding value under key %q: %w", key, err)
	}
	return value, true, nil
}

// PutValue encodes v and stages it under key.
func PutValue(w Writer, key string, v storedvalue.Value) error {
	bz, err := storedvalue.Serialize(v)
	if err != nil {
		return fmt.Errorf("encoding value for key %q: %w", key, err)
	}
	w.Put(key, bz)
	return nil
}

// GetObject returns the ephemeral object under key if it has type T.
func GetObject[T any](r Reader, key string) (T, bool) {
	var zero T
	v, ok := r.GetObject(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
