package cas

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

type blake3Pointer struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Pointer files are stored at: <root>/blake3/<first2>/<blake3>.json
func (s *Store) pointerPath(b3 string) string {
	return filepath.Join(s.root, "blake3", b3[:2], b3+".json")
}

func (s *Store) writePointer(d Digest) error {
	path := s.pointerPath(d.BLAKE3)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create blake3 directory: %w", err)
	}

	data, err := json.Marshal(blake3Pointer{SHA256: d.SHA256, Size: d.Size})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pointer-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tempFileClose(tmp)
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write pointer: %w", err)
	}
	if err := tempFileClose(tmp); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename pointer: %w", err)
	}
	return nil
}

// LookupBlake3 resolves a BLAKE3 digest to the full Digest of a stored blob.
func (s *Store) LookupBlake3(b3 string) (Digest, error) {
	if !hexDigest.MatchString(b3) {
		return Digest{}, ErrInvalidHash
	}
	data, err := os.ReadFile(s.pointerPath(b3))
	if err != nil {
		if os.IsNotExist(err) {
			return Digest{}, ErrBlobNotFound
		}
		return Digest{}, fmt.Errorf("failed to read pointer: %w", err)
	}

	var p blake3Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return Digest{}, fmt.Errorf("failed to parse pointer: %w", err)
	}
	if !s.Exists(p.SHA256) {
		return Digest{}, ErrBlobNotFound
	}
	return Digest{SHA256: p.SHA256, BLAKE3: b3, Size: p.Size}, nil
}

// Blake3Hash computes the BLAKE3 digest of data without storing it.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
