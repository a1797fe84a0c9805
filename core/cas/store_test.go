package cas

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestPutAndRetrieve(t *testing.T) {
	store := newTestStore(t)
	data := []byte("reference template bytes")

	d, err := store.Put(bytes.NewReader(data), 0)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if d.SHA256 != Hash(data) {
		t.Errorf("sha256 = %s, want %s", d.SHA256, Hash(data))
	}
	if d.BLAKE3 != Blake3Hash(data) {
		t.Errorf("blake3 = %s, want %s", d.BLAKE3, Blake3Hash(data))
	}
	if d.Size != int64(len(data)) {
		t.Errorf("size = %d", d.Size)
	}

	got, err := store.Retrieve(d.SHA256)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("retrieved %q", got)
	}
	if !store.Exists(d.SHA256) {
		t.Error("Exists() = false")
	}
}

func TestPutDuplicate(t *testing.T) {
	store := newTestStore(t)
	a, err := store.Put(strings.NewReader("same"), 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Put(strings.NewReader("same"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("digests differ: %+v vs %+v", a, b)
	}

	tmp, _ := os.ReadDir(filepath.Join(store.root, "tmp"))
	if len(tmp) != 0 {
		t.Errorf("temp files left behind: %d", len(tmp))
	}
}

func TestPutLimit(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Put(strings.NewReader("12345"), 5); err != nil {
		t.Errorf("payload at the limit should pass: %v", err)
	}
	_, err := store.Put(strings.NewReader("123456"), 5)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
	if store.Exists(Hash([]byte("123456"))) {
		t.Error("oversized blob should not be stored")
	}
	tmp, _ := os.ReadDir(filepath.Join(store.root, "tmp"))
	if len(tmp) != 0 {
		t.Errorf("temp files left behind: %d", len(tmp))
	}
}

func TestRetrieveErrors(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Retrieve("nothex"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("error = %v, want ErrInvalidHash", err)
	}
	if _, err := store.Retrieve(Hash([]byte("missing"))); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("error = %v, want ErrBlobNotFound", err)
	}
	if store.Exists("nothex") {
		t.Error("Exists(invalid) = true")
	}
}

func TestLookupBlake3(t *testing.T) {
	store := newTestStore(t)
	d, err := store.Put(strings.NewReader("indexed"), 0)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.LookupBlake3(d.BLAKE3)
	if err != nil {
		t.Fatalf("LookupBlake3() error = %v", err)
	}
	if got != d {
		t.Errorf("LookupBlake3() = %+v, want %+v", got, d)
	}

	if _, err := store.LookupBlake3(Blake3Hash([]byte("other"))); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("error = %v, want ErrBlobNotFound", err)
	}
	if _, err := store.LookupBlake3("xyz"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("error = %v, want ErrInvalidHash", err)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	d, err := store.Put(strings.NewReader("to delete"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(d); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Exists(d.SHA256) {
		t.Error("blob still present")
	}
	if _, err := store.LookupBlake3(d.BLAKE3); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("pointer still resolves: %v", err)
	}
	if err := store.Delete(d); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestPutRenameError(t *testing.T) {
	store := newTestStore(t)
	orig := osRename
	osRename = func(string, string) error { return errors.New("rename failed") }
	defer func() { osRename = orig }()

	if _, err := store.Put(strings.NewReader("x"), 0); err == nil {
		t.Fatal("expected error")
	}
	tmp, _ := os.ReadDir(filepath.Join(store.root, "tmp"))
	if len(tmp) != 0 {
		t.Errorf("temp files left behind: %d", len(tmp))
	}
}

func TestPutCloseError(t *testing.T) {
	store := newTestStore(t)
	orig := tempFileClose
	tempFileClose = func(f io.Closer) error {
		f.Close()
		return errors.New("close failed")
	}
	defer func() { tempFileClose = orig }()

	if _, err := store.Put(strings.NewReader("x"), 0); err == nil {
		t.Fatal("expected error")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestPutReadError(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put(failingReader{}, 0); err == nil {
		t.Fatal("expected error")
	}
}
