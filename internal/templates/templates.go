// Package templates manages uploaded HWPX reference templates.
//
// Template bytes live in a content-addressed blob store; the metadata row
// lives in the service database. Identical uploads under different names
// resolve to the first stored template.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/hwpxreport/core/cache"
	"github.com/FocuswithJustin/hwpxreport/core/cas"
	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/hwpx"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/logging"
	"github.com/FocuswithJustin/hwpxreport/internal/store"
)

// DefaultMaxBytes is the upload ceiling used when none is configured.
const DefaultMaxBytes = 20 << 20

const maxNameLength = 200

// Template describes a stored reference template. Its JSON form never
// includes the storage location.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	Default     bool      `json:"default"`
	UploadedAt  time.Time `json:"uploaded_at"`

	path string
}

// Path returns the on-disk location of the template archive.
func (t *Template) Path() string {
	return t.path
}

// UploadOptions carries upload metadata.
type UploadOptions struct {
	Name        string
	Description string
	Default     bool
}

// Store is the template registry.
type Store struct {
	db       *store.DB
	blobs    *cas.Store
	maxBytes int64
	now      func() time.Time

	mu     sync.Mutex
	refs   map[string]int
	styles *cache.StyleCache
}

// New creates a template store. A maxBytes of zero selects DefaultMaxBytes.
func New(db *store.DB, blobs *cas.Store, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{
		db:       db,
		blobs:    blobs,
		maxBytes: maxBytes,
		now:      time.Now,
		refs:     make(map[string]int),
		styles:   cache.NewStyleCache(cache.DefaultConfig()),
	}
}

// MaxBytes returns the upload ceiling.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Upload validates and stores a template. The second result reports whether
// an identical template already existed, in which case it is returned
// unchanged (apart from a requested default flag).
func (s *Store) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (*Template, bool, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, false, errors.NewValidation("name", "template name is required")
	}
	if len(name) > maxNameLength {
		return nil, false, errors.NewValidation("name", fmt.Sprintf("template name exceeds %d characters", maxNameLength))
	}

	digest, err := s.blobs.Put(r, s.maxBytes)
	if err != nil {
		if errors.Is(err, cas.ErrTooLarge) {
			return nil, false, &errors.ValidationError{
				Field:   "template",
				Message: fmt.Sprintf("template exceeds %d bytes", s.maxBytes),
				Err:     err,
			}
		}
		return nil, false, errors.Wrap(err, "storing template")
	}

	if tpl, err := s.existing(ctx, digest, opts); tpl != nil || err != nil {
		return tpl, tpl != nil, err
	}

	data, err := s.blobs.Retrieve(digest.SHA256)
	if err != nil {
		return nil, false, errors.Wrap(err, "reading template")
	}
	if _, err := hwpx.Inspect(data); err != nil {
		s.blobs.Delete(digest)
		return nil, false, err
	}

	rec := &store.TemplateRecord{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(opts.Description),
		SHA256:      digest.SHA256,
		BLAKE3:      digest.BLAKE3,
		Size:        digest.Size,
		Default:     opts.Default,
		UploadedAt:  s.now().UTC(),
	}
	if err := s.db.InsertTemplate(ctx, rec); err != nil {
		// A concurrent upload of the same archive won the checksum's unique key.
		if tpl, findErr := s.existing(ctx, digest, opts); tpl != nil {
			return tpl, true, nil
		} else if findErr != nil {
			return nil, false, findErr
		}
		return nil, false, err
	}
	logging.TemplateEvent("template_uploaded", rec.ID, "size", rec.Size, "default", rec.Default)
	return s.fromRecord(rec), false, nil
}

// existing returns the stored template with digest's checksum, honouring a
// requested default flag. It returns (nil, nil) when no such template exists.
func (s *Store) existing(ctx context.Context, digest cas.Digest, opts UploadOptions) (*Template, error) {
	rec, err := s.db.FindTemplateBySHA256(ctx, digest.SHA256)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if opts.Default && !rec.Default {
		if err := s.db.SetDefaultTemplate(ctx, rec.ID); err != nil {
			return nil, err
		}
		rec.Default = true
	}
	logging.TemplateEvent("template_deduplicated", rec.ID, "size", digest.Size)
	return s.fromRecord(rec), nil
}

// Get returns the template with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Template, error) {
	rec, err := s.db.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.fromRecord(rec), nil
}

// Default returns the default template, or a NotFoundError when none is set.
func (s *Store) Default(ctx context.Context) (*Template, error) {
	rec, err := s.db.DefaultTemplate(ctx)
	if err != nil {
		return nil, err
	}
	return s.fromRecord(rec), nil
}

// List returns every template, oldest first.
func (s *Store) List(ctx context.Context) ([]*Template, error) {
	recs, err := s.db.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Template, len(recs))
	for i, rec := range recs {
		out[i] = s.fromRecord(rec)
	}
	return out, nil
}

// Delete removes a template. It fails with a ConflictError while a live job
// holds a reference to it.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.refs[id]; n > 0 {
		return &errors.ConflictError{
			Resource: "template",
			ID:       id,
			Reason:   fmt.Sprintf("referenced by %d active job(s)", n),
		}
	}
	rec, err := s.db.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(cas.Digest{SHA256: rec.SHA256, BLAKE3: rec.BLAKE3}); err != nil && !errors.Is(err, cas.ErrBlobNotFound) {
		return errors.Wrap(err, "removing template blob")
	}
	s.styles.Remove(rec.SHA256)
	logging.TemplateEvent("template_deleted", id)
	return nil
}

// Acquire resolves a template reference for a job and pins it against
// deletion until Release. An empty id selects the default template; when no
// default exists Acquire returns (nil, nil). Failures are TemplateErrors.
func (s *Store) Acquire(ctx context.Context, id string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		rec *store.TemplateRecord
		err error
	)
	if id == "" {
		rec, err = s.db.DefaultTemplate(ctx)
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
	} else {
		rec, err = s.db.GetTemplate(ctx, id)
	}
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewTemplate(id, "template not found", err)
		}
		return nil, err
	}
	// The BLAKE3 pointer must resolve to the same blob the row names.
	if d, err := s.blobs.LookupBlake3(rec.BLAKE3); err != nil || d.SHA256 != rec.SHA256 {
		return nil, errors.NewTemplate(rec.ID, "template content is missing", errors.ErrNotFound)
	}
	s.refs[rec.ID]++
	return s.fromRecord(rec), nil
}

// Release drops a reference taken by Acquire.
func (s *Store) Release(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[id] <= 1 {
		delete(s.refs, id)
		return
	}
	s.refs[id]--
}

// Styles extracts the outline styles of a template. Results are cached by
// checksum since stored content never changes.
func (s *Store) Styles(ctx context.Context, id string) (report.Fragment, error) {
	rec, err := s.db.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if frag, ok := s.styles.Get(rec.SHA256); ok {
		return frag, nil
	}

	data, err := s.blobs.Retrieve(rec.SHA256)
	if err != nil {
		return nil, errors.NewTemplate(id, "template content is unreadable", err)
	}
	if cas.Blake3Hash(data) != rec.BLAKE3 {
		return nil, errors.NewTemplate(id, "template content does not match its checksum", nil)
	}
	pkg, err := hwpx.Inspect(data)
	if err != nil {
		return nil, errors.NewTemplate(id, "template is not a valid HWPX archive", err)
	}
	frag, err := hwpx.ExtractStyles(pkg.Header)
	if err != nil {
		return nil, errors.NewTemplate(id, "template styles are unreadable", err)
	}
	s.styles.Put(rec.SHA256, frag)
	return frag, nil
}

// CacheStats reports style cache statistics.
func (s *Store) CacheStats() cache.Stats {
	return s.styles.Stats()
}

func (s *Store) fromRecord(rec *store.TemplateRecord) *Template {
	return &Template{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Checksum:    rec.SHA256,
		Size:        rec.Size,
		Default:     rec.Default,
		UploadedAt:  rec.UploadedAt,
		path:        s.blobs.Path(rec.SHA256),
	}
}
