// Package jobs runs conversion jobs: it accepts source text, stores it in a
// per-job working area, renders it through an engine on a worker pool, and
// expires every job once its retention window passes.
//
// Every status change is a compare-and-set on the durable job record, so at
// most one worker ever owns a job and a lost race is reported as a
// ConflictError rather than silently proceeding.
package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/hwpxreport/core/engine"
	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/logging"
	"github.com/FocuswithJustin/hwpxreport/internal/store"
	"github.com/FocuswithJustin/hwpxreport/internal/templates"
	"github.com/FocuswithJustin/hwpxreport/internal/validation"
)

// Defaults applied by NewManager to zero Options fields.
const (
	DefaultMaxSourceBytes = 3 << 20
	DefaultTTL            = 24 * time.Hour
	DefaultRenderTimeout  = 2 * time.Minute
	DefaultSweepInterval  = time.Hour
	DefaultWorkers        = 3
)

// Options configures a Manager.
type Options struct {
	Root           string
	MaxSourceBytes int64
	TTL            time.Duration
	RenderTimeout  time.Duration
	SweepInterval  time.Duration
	Workers        int
	Transformer    *report.Transformer
	// BaseStyles sit between the built-in defaults and template styles.
	BaseStyles report.Fragment
}

// Request is a conversion submission.
type Request struct {
	Source     string
	TemplateID string
	Styles     report.Fragment
	Filename   string
	Raw        bool
}

// frontMatter is the optional YAML header of a source document. Request
// fields take precedence over it.
type frontMatter struct {
	Template   string                     `yaml:"template"`
	Filename   string                     `yaml:"filename"`
	Preprocess *bool                      `yaml:"preprocess"`
	Styles     map[string]report.Override `yaml:"styles"`
}

// Manager owns job records, working storage, and the worker pool.
type Manager struct {
	db        *store.DB
	templates *templates.Store
	engine    engine.Engine
	opts      Options
	now       func() time.Time

	queue *queue
	locks *keyedMutex

	mu        sync.Mutex
	readers   map[string]int
	held      map[string]string // job id -> template id pinned for it
	observers []Observer
	started   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager rooted at opts.Root.
func NewManager(db *store.DB, tpls *templates.Store, eng engine.Engine, opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.NewValidation("root", "job storage root is required")
	}
	if opts.MaxSourceBytes <= 0 {
		opts.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = DefaultRenderTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Transformer == nil {
		opts.Transformer = report.NewTransformer()
	}
	if eng == nil {
		eng = engine.Unavailable
	}
	if err := os.MkdirAll(opts.Root, 0700); err != nil {
		return nil, errors.NewIO("create", opts.Root, err)
	}
	return &Manager{
		db:        db,
		templates: tpls,
		engine:    eng,
		opts:      opts,
		now:       time.Now,
		queue:     newQueue(),
		locks:     newKeyedMutex(),
		readers:   make(map[string]int),
		held:      make(map[string]string),
	}, nil
}

// MaxSourceBytes returns the submission ceiling.
func (m *Manager) MaxSourceBytes() int64 {
	return m.opts.MaxSourceBytes
}

// Subscribe registers fn for every committed status change.
func (m *Manager) Subscribe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Manager) emit(id string, status Status) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	ev := Event{JobID: id, Status: status, Timestamp: m.now().UTC()}
	for _, fn := range observers {
		fn(ev)
	}
}

func (m *Manager) workdir(id string) string {
	return filepath.Join(m.opts.Root, id)
}

// Create validates a submission and records a pending job. Oversized source
// text is rejected before anything is stored.
func (m *Manager) Create(ctx context.Context, req Request) (*Job, error) {
	if int64(len(req.Source)) > m.opts.MaxSourceBytes {
		return nil, &errors.ValidationError{
			Field:   "source",
			Message: fmt.Sprintf("source text exceeds %d bytes", m.opts.MaxSourceBytes),
		}
	}

	var fm frontMatter
	body, err := frontmatter.Parse(strings.NewReader(req.Source), &fm)
	if err != nil {
		return nil, &errors.ValidationError{Field: "source", Message: "front matter is not valid YAML", Err: err}
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, errors.NewValidation("source", "source text is empty")
	}

	fmStyles, err := report.FragmentFromNames(fm.Styles)
	if err != nil {
		return nil, err
	}
	templateID := firstNonEmpty(req.TemplateID, fm.Template)
	filename := firstNonEmpty(req.Filename, fm.Filename)
	raw := req.Raw || (fm.Preprocess != nil && !*fm.Preprocess)

	tpl, err := m.templates.Acquire(ctx, templateID)
	if err != nil {
		return nil, err
	}
	release := func() {
		if tpl != nil {
			m.templates.Release(tpl.ID)
		}
	}

	base := m.opts.BaseStyles
	if tpl != nil {
		tplStyles, err := m.templates.Styles(ctx, tpl.ID)
		if err != nil {
			release()
			return nil, err
		}
		base = base.Merge(tplStyles)
	}
	settings, err := report.Resolve(fmStyles.Merge(req.Styles), base)
	if err != nil {
		release()
		return nil, err
	}
	stylesJSON, err := settings.MarshalJSON()
	if err != nil {
		release()
		return nil, err
	}

	now := m.now().UTC()
	rec := &store.JobRecord{
		ID:         uuid.NewString(),
		Status:     string(StatusPending),
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.opts.TTL),
		SourceRef:  sourceEntry,
		Filename:   validation.OutputFilename(filename),
		Raw:        raw,
		Styles:     string(stylesJSON),
		InputBytes: int64(len(req.Source)),
	}

	if tpl != nil {
		rec.TemplateID = tpl.ID
		m.mu.Lock()
		m.held[rec.ID] = tpl.ID
		m.mu.Unlock()
	}

	unlock := m.locks.lock(rec.ID)
	err = m.allocate(ctx, rec, body)
	unlock()
	if err != nil {
		m.releaseTemplate(rec.ID)
		return nil, err
	}

	logging.JobEvent("job_created", rec.ID,
		"input_bytes", rec.InputBytes, "template_id", rec.TemplateID, "raw", rec.Raw)
	m.emit(rec.ID, StatusPending)
	m.queue.push(rec.ID)
	return jobFromRecord(rec), nil
}

// allocate creates the working area, writes the compressed source, and
// inserts the record. A failure leaves no trace.
func (m *Manager) allocate(ctx context.Context, rec *store.JobRecord, body []byte) error {
	dir := m.workdir(rec.ID)
	if err := os.Mkdir(dir, 0700); err != nil {
		return errors.NewIO("create", dir, err)
	}
	if err := writeSource(filepath.Join(dir, sourceEntry), body); err != nil {
		os.RemoveAll(dir)
		return err
	}
	if err := m.db.InsertJob(ctx, rec); err != nil {
		os.RemoveAll(dir)
		return err
	}
	return nil
}

func writeSource(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	zw, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := zw.Write(body); err != nil {
		f.Close()
		return errors.NewIO("write", path, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return errors.NewIO("write", path, err)
	}
	return f.Close()
}

func readSource(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewIO("open", path, err)
	}
	defer f.Close()
	zr, err := xz.NewReader(f)
	if err != nil {
		return "", errors.NewIO("read", path, err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return "", errors.NewIO("read", path, err)
	}
	return string(data), nil
}

// Process claims a pending job and runs it to completion or failure. The
// returned error covers only the claim and the final commit; pipeline
// failures are recorded on the job.
func (m *Manager) Process(ctx context.Context, id string) (*Job, error) {
	rec, token, err := m.claim(ctx, id)
	if err != nil {
		return nil, err
	}

	start := m.now()
	outBytes, stage, runErr := m.run(ctx, rec)

	// The outcome is committed even if ctx was cancelled mid-render.
	commitCtx := context.WithoutCancel(ctx)
	finished := m.now().UTC()
	rec.FinishedAt = finished
	rec.ProcessingMS = finished.Sub(start).Milliseconds()
	if runErr != nil {
		rec.Status = string(StatusFailed)
		rec.ErrorStage = stage
		rec.ErrorCode = string(errors.KindOf(runErr))
		rec.ErrorMessage = errors.PublicMessage(runErr)
		logging.JobError(id, stage, runErr, "code", rec.ErrorCode, "processing_ms", rec.ProcessingMS)
	} else {
		rec.Status = string(StatusCompleted)
		rec.OutputRef = outputEntry
		rec.OutputBytes = outBytes
		logging.JobEvent("job_completed", id, "output_bytes", outBytes, "processing_ms", rec.ProcessingMS)
	}

	unlock := m.locks.lock(id)
	err = m.db.UpdateJob(commitCtx, rec, string(StatusProcessing), token)
	unlock()
	m.releaseTemplate(id)
	if err != nil {
		return nil, err
	}
	m.emit(id, Status(rec.Status))
	return jobFromRecord(rec), nil
}

// claim moves a pending job to Processing under a fresh claim token. It
// holds the id lock, so a claim never interleaves with expiry of the same
// job; the lock is released before rendering starts.
func (m *Manager) claim(ctx context.Context, id string) (*store.JobRecord, string, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	rec, err := m.db.GetJob(ctx, id)
	if err != nil {
		return nil, "", err
	}
	from := Status(rec.Status)
	if from == StatusExpired {
		return nil, "", &errors.ExpiredError{Resource: "job", ID: id}
	}
	if from == StatusPending && m.due(rec) {
		if _, err := m.expireLocked(ctx, id); err != nil {
			return nil, "", err
		}
		return nil, "", &errors.ExpiredError{Resource: "job", ID: id}
	}
	if !from.CanTransition(StatusProcessing) {
		return nil, "", &errors.ConflictError{Resource: "job", ID: id, Reason: fmt.Sprintf("status is %s", from)}
	}

	token := uuid.NewString()
	prevToken := rec.ClaimToken
	rec.Status = string(StatusProcessing)
	rec.ClaimToken = token
	if err := m.db.UpdateJob(ctx, rec, string(from), prevToken); err != nil {
		return nil, "", err
	}
	m.emit(id, StatusProcessing)
	return rec, token, nil
}

// run executes the pipeline and returns the output size, or the failing
// stage and its error.
func (m *Manager) run(ctx context.Context, rec *store.JobRecord) (int64, string, error) {
	dir := m.workdir(rec.ID)

	text, err := readSource(filepath.Join(dir, rec.SourceRef))
	if err != nil {
		return 0, StageSource, err
	}

	settings, err := report.ParseSettingsJSON([]byte(rec.Styles))
	if err != nil {
		return 0, StageStyles, err
	}

	var doc *report.Document
	if rec.Raw {
		doc = report.RawDocument(text, settings)
	} else {
		doc = report.NewDocument(m.opts.Transformer, text, settings)
	}
	logging.Debug("document prepared", "job_id", rec.ID, "blocks", len(doc.Blocks))

	var templatePath string
	if rec.TemplateID != "" {
		tpl, err := m.templates.Get(ctx, rec.TemplateID)
		if err != nil {
			return 0, StageTemplate, errors.NewTemplate(rec.TemplateID, "template not found", err)
		}
		templatePath = tpl.Path()
	}

	data, err := m.render(ctx, doc, templatePath)
	if err != nil {
		return 0, StageRender, err
	}
	if len(data) == 0 {
		return 0, StageRender, errors.NewEngine("output", "engine produced an empty document", nil)
	}

	if err := publish(dir, data); err != nil {
		return 0, StageOutput, err
	}
	return int64(len(data)), "", nil
}

type renderResult struct {
	data []byte
	err  error
}

// render runs the engine under the render timeout. The deadline holds even
// for an engine that ignores its context: the job fails on time and a late
// result is discarded.
func (m *Manager) render(ctx context.Context, doc *report.Document, templatePath string) ([]byte, error) {
	renderCtx, cancel := context.WithTimeout(ctx, m.opts.RenderTimeout)
	defer cancel()

	done := make(chan renderResult, 1)
	go func() {
		data, err := m.engine.Render(renderCtx, doc, templatePath)
		done <- renderResult{data: data, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, engine.Classify(renderCtx, res.err)
		}
		if err := renderCtx.Err(); err != nil {
			return nil, engine.Classify(renderCtx, err)
		}
		return res.data, nil
	case <-renderCtx.Done():
		logging.Warn("engine did not return before its deadline", "timeout", m.opts.RenderTimeout.String())
		return nil, engine.Classify(renderCtx, renderCtx.Err())
	}
}

// publish writes data to a staging file and renames it into place, so a
// reader never observes a partial output.
func publish(dir string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".output-*")
	if err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", tmpPath, err)
	}
	dest := filepath.Join(dir, outputEntry)
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", dest, err)
	}
	return nil
}

func (m *Manager) releaseTemplate(id string) {
	m.mu.Lock()
	tplID, ok := m.held[id]
	delete(m.held, id)
	m.mu.Unlock()
	if ok {
		m.templates.Release(tplID)
	}
}

func (m *Manager) due(rec *store.JobRecord) bool {
	return !m.now().Before(rec.ExpiresAt)
}

// lookupLocked loads a job and applies expiry: an expired or overdue job is
// reported as an ExpiredError. A processing job is never expired here. The
// caller holds the id lock.
func (m *Manager) lookupLocked(ctx context.Context, id string) (*store.JobRecord, error) {
	rec, err := m.db.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	status := Status(rec.Status)
	if status == StatusExpired {
		return nil, &errors.ExpiredError{Resource: "job", ID: id}
	}
	if m.due(rec) && status != StatusProcessing {
		if _, err := m.expireLocked(ctx, id); err != nil && !errors.Is(err, errBusy) {
			return nil, err
		}
		return nil, &errors.ExpiredError{Resource: "job", ID: id}
	}
	return rec, nil
}

// Status returns the current view of a job.
func (m *Manager) Status(ctx context.Context, id string) (*Job, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	rec, err := m.lookupLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return jobFromRecord(rec), nil
}

// Result returns the rendered document of a completed job.
func (m *Manager) Result(ctx context.Context, id string) ([]byte, error) {
	d, err := m.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	data, err := io.ReadAll(d)
	if err != nil {
		return nil, errors.NewIO("read", "", err)
	}
	return data, nil
}

// Download is an open handle on a job's output. The output is not removed
// by expiry until the handle is closed.
type Download struct {
	*os.File
	Job *Job

	once    sync.Once
	release func()
}

// Close closes the file and releases the job.
func (d *Download) Close() error {
	err := d.File.Close()
	d.once.Do(d.release)
	return err
}

// Open returns a handle on the output of a completed job.
func (m *Manager) Open(ctx context.Context, id string) (*Download, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	rec, err := m.lookupLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if Status(rec.Status) != StatusCompleted {
		return nil, &errors.NotReadyError{ID: id, Status: rec.Status}
	}
	path := filepath.Join(m.workdir(id), rec.OutputRef)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}

	m.mu.Lock()
	m.readers[id]++
	m.mu.Unlock()
	return &Download{
		File: f,
		Job:  jobFromRecord(rec),
		release: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.readers[id] <= 1 {
				delete(m.readers, id)
				return
			}
			m.readers[id]--
		},
	}, nil
}

// errBusy marks a due job that expiry must leave for a later sweep.
var errBusy = errors.New("job busy")

// expire moves a job to Expired and removes its working area. It reports
// false with no error for a job that was already expired.
func (m *Manager) expire(ctx context.Context, id string) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()
	return m.expireLocked(ctx, id)
}

func (m *Manager) expireLocked(ctx context.Context, id string) (bool, error) {
	rec, err := m.db.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	from := Status(rec.Status)
	if from == StatusExpired {
		return false, nil
	}
	if from == StatusProcessing {
		return false, errBusy
	}
	m.mu.Lock()
	busy := m.readers[id] > 0
	m.mu.Unlock()
	if busy {
		return false, errBusy
	}

	rec.Status = string(StatusExpired)
	if err := m.db.UpdateJob(ctx, rec, string(from), rec.ClaimToken); err != nil {
		return false, err
	}
	if err := os.RemoveAll(m.workdir(id)); err != nil {
		logging.Warn("removing expired job storage", "job_id", id, "error", err)
	}
	m.releaseTemplate(id)
	logging.JobEvent("job_expired", id, "previous_status", string(from))
	m.emit(id, StatusExpired)
	return true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
