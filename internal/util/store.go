package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrNoFile is returned by LoadJSON when path does not exist.
	ErrNoFile = errors.New("file does not exist")
	// ErrDecode wraps content that exists but is not valid JSON for the target.
	ErrDecode = errors.New("decode failed")
)

// LoadJSON decodes the JSON document at path into v.
// A missing file yields ErrNoFile and unparseable content an error wrapping ErrDecode;
// other read failures are returned as-is.
func LoadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNoFile
		}
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// SaveJSON encodes v as indented JSON and writes it atomically to path.
func SaveJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, b, 0o600)
}
