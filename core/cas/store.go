// Package cas stores uploaded template archives by content. Each blob is
// addressed by its SHA-256 digest; a BLAKE3 pointer file indexes the same
// blob for fast duplicate lookup.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/zeebo/blake3"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when a blob with the given digest does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a digest is not a 64-character hex string.
var ErrInvalidHash = errors.New("invalid hash format")

// ErrTooLarge is returned by Put when the payload exceeds the limit.
var ErrTooLarge = errors.New("blob exceeds size limit")

var hexDigest = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Digest identifies a stored blob.
type Digest struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
	Size   int64  `json:"size"`
}

// Store is a directory of content-addressed blobs.
type Store struct {
	root string
}

// NewStore creates the blob directories under root.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{"sha256", "blake3", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Put streams r into the store. A limit greater than zero caps the payload;
// exceeding it returns ErrTooLarge and leaves nothing behind. Storing the same
// content twice yields the same digest and keeps one copy.
func (s *Store) Put(r io.Reader, limit int64) (Digest, error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), ".blob-*")
	if err != nil {
		return Digest{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	sh := sha256.New()
	bh := blake3.New()
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(io.MultiWriter(tmp, sh, bh), src)
	if err != nil {
		tempFileClose(tmp)
		return Digest{}, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tempFileClose(tmp); err != nil {
		return Digest{}, fmt.Errorf("failed to close temp file: %w", err)
	}
	if limit > 0 && n > limit {
		return Digest{}, ErrTooLarge
	}

	d := Digest{SHA256: sum(sh), BLAKE3: sum(bh), Size: n}
	final := s.Path(d.SHA256)
	if _, err := os.Stat(final); err != nil {
		if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
			return Digest{}, fmt.Errorf("failed to create prefix directory: %w", err)
		}
		if err := osRename(tmpPath, final); err != nil {
			return Digest{}, fmt.Errorf("failed to rename blob: %w", err)
		}
		committed = true
	}

	if err := s.writePointer(d); err != nil {
		return Digest{}, fmt.Errorf("failed to create BLAKE3 pointer: %w", err)
	}
	return d, nil
}

// Path returns where the blob with the given SHA-256 digest lives.
// Blobs are stored at: <root>/sha256/<first2>/<digest>
func (s *Store) Path(sha string) string {
	if len(sha) < 2 {
		return filepath.Join(s.root, "sha256", sha)
	}
	return filepath.Join(s.root, "sha256", sha[:2], sha)
}

// Retrieve reads a whole blob.
func (s *Store) Retrieve(sha string) ([]byte, error) {
	if !hexDigest.MatchString(sha) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.Path(sha))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Exists reports whether a blob is present.
func (s *Store) Exists(sha string) bool {
	if !hexDigest.MatchString(sha) {
		return false
	}
	_, err := os.Stat(s.Path(sha))
	return err == nil
}

// Delete removes a blob and its BLAKE3 pointer. Deleting a missing blob returns
// ErrBlobNotFound.
func (s *Store) Delete(d Digest) error {
	if !hexDigest.MatchString(d.SHA256) {
		return ErrInvalidHash
	}
	if err := os.Remove(s.Path(d.SHA256)); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return err
	}
	if hexDigest.MatchString(d.BLAKE3) {
		os.Remove(s.pointerPath(d.BLAKE3))
	}
	return nil
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the SHA-256 digest of data without storing it.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
