package jobs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/internal/logging"
	"github.com/FocuswithJustin/hwpxreport/internal/store"
)

// SweepReport summarizes one expiry pass.
type SweepReport struct {
	Expired int `json:"expired"`
	Orphans int `json:"orphans"`
	Skipped int `json:"skipped"`
}

// Sweep expires every job whose retention window has passed and removes
// working directories that no live job owns. Processing jobs and jobs with an
// open download are skipped and picked up by a later pass.
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport

	due, err := m.db.ListDueJobs(ctx, m.now(),
		string(StatusPending), string(StatusProcessing), string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return rep, err
	}
	for _, rec := range due {
		expired, err := m.expire(ctx, rec.ID)
		switch {
		case errors.Is(err, errBusy), errors.Is(err, errors.ErrConflict):
			// Another writer moved the job first; a later pass sees its new state.
			rep.Skipped++
		case err != nil:
			return rep, err
		case expired:
			rep.Expired++
		}
	}

	entries, err := os.ReadDir(m.opts.Root)
	if err != nil {
		return rep, errors.NewIO("read", m.opts.Root, err)
	}
	for _, e := range entries {
		removed, err := m.removeOrphan(ctx, e.Name())
		if err != nil {
			return rep, err
		}
		if removed {
			rep.Orphans++
		}
	}

	if rep != (SweepReport{}) {
		logging.Info("sweep completed", "expired", rep.Expired, "orphans", rep.Orphans, "skipped", rep.Skipped)
	}
	return rep, nil
}

// removeOrphan deletes an entry of the storage root that belongs to no job or
// to an already expired one.
func (m *Manager) removeOrphan(ctx context.Context, name string) (bool, error) {
	unlock := m.locks.lock(name)
	defer unlock()

	rec, err := m.db.GetJob(ctx, name)
	switch {
	case errors.Is(err, errors.ErrNotFound):
	case err != nil:
		return false, err
	case Status(rec.Status) != StatusExpired:
		return false, nil
	}
	if err := os.RemoveAll(filepath.Join(m.opts.Root, name)); err != nil {
		return false, errors.NewIO("remove", name, err)
	}
	logging.Debug("removed orphan job storage", "name", name)
	return true, nil
}

// Start recovers jobs left by a previous process, runs an initial sweep, and
// launches the workers and the periodic sweeper. Work stops when ctx is
// cancelled or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("job manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if err := m.recover(ctx); err != nil {
		return err
	}
	if _, err := m.Sweep(ctx); err != nil {
		logging.Warn("initial sweep failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	for i := 0; i < m.opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker(runCtx)
	}
	m.wg.Add(1)
	go m.sweeper(runCtx)

	logging.Info("job manager started", "workers", m.opts.Workers, "sweep_interval", m.opts.SweepInterval.String())
	return nil
}

// recover fails jobs that were mid-render when the previous process stopped
// and requeues jobs that never started.
func (m *Manager) recover(ctx context.Context) error {
	recs, err := m.db.ListJobs(ctx, string(StatusPending), string(StatusProcessing))
	if err != nil {
		return err
	}
	var failed, requeued int
	for _, rec := range recs {
		if Status(rec.Status) == StatusProcessing {
			if err := m.fail(ctx, rec, StageRecovery, errors.New("processing was interrupted by a restart")); err != nil {
				return err
			}
			failed++
			continue
		}
		if m.queue.has(rec.ID) {
			continue
		}
		if rec.TemplateID != "" && !m.pinned(rec.ID) {
			if _, err := m.templates.Acquire(ctx, rec.TemplateID); err != nil {
				if err := m.fail(ctx, rec, StageRecovery, err); err != nil {
					return err
				}
				failed++
				continue
			}
			m.mu.Lock()
			m.held[rec.ID] = rec.TemplateID
			m.mu.Unlock()
		}
		m.queue.push(rec.ID)
		requeued++
	}
	if failed+requeued > 0 {
		logging.Info("recovered jobs", "failed", failed, "requeued", requeued)
	}
	return nil
}

func (m *Manager) pinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[id]
	return ok
}

// fail records cause on a non-terminal job outside the worker pipeline.
func (m *Manager) fail(ctx context.Context, rec *store.JobRecord, stage string, cause error) error {
	from := rec.Status
	rec.Status = string(StatusFailed)
	rec.FinishedAt = m.now().UTC()
	rec.ErrorStage = stage
	rec.ErrorCode = string(errors.KindOf(cause))
	rec.ErrorMessage = errors.PublicMessage(cause)
	if errors.KindOf(cause) == errors.KindInternal {
		rec.ErrorMessage = cause.Error()
	}
	if err := m.db.UpdateJob(ctx, rec, from, rec.ClaimToken); err != nil {
		return err
	}
	m.releaseTemplate(rec.ID)
	logging.JobError(rec.ID, stage, cause)
	m.emit(rec.ID, StatusFailed)
	return nil
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		id, ok := m.queue.pop()
		if !ok {
			return
		}
		if _, err := m.Process(ctx, id); err != nil {
			if errors.Is(err, errors.ErrConflict) || errors.Is(err, errors.ErrNotFound) {
				logging.Debug("skipping queued job", "job_id", id, "error", err)
				continue
			}
			logging.JobError(id, "commit", err)
		}
	}
}

func (m *Manager) sweeper(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				logging.Error("sweep failed", "error", err)
			}
		}
	}
}

// Close stops the workers and the sweeper and waits for them to exit.
// In-flight renders are cancelled and recorded as failed.
func (m *Manager) Close() {
	m.queue.close()
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
