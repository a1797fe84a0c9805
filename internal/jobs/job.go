package jobs

import (
	"time"

	"github.com/FocuswithJustin/hwpxreport/internal/store"
)

// Working area entry names.
const (
	sourceEntry = "source.md.xz"
	outputEntry = "output.hwpx"
)

// Pipeline stages recorded on failure.
const (
	StageSource   = "source"
	StageStyles   = "styles"
	StageTemplate = "template"
	StageRender   = "render"
	StageOutput   = "output"
	StageRecovery = "recovery"
)

// ErrorInfo describes why a job failed. Message is safe to show to callers.
type ErrorInfo struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is the caller-visible view of a conversion job.
type Job struct {
	ID           string     `json:"id"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	TemplateID   string     `json:"template_id,omitempty"`
	Filename     string     `json:"filename"`
	Raw          bool       `json:"raw"`
	InputBytes   int64      `json:"input_bytes"`
	OutputBytes  int64      `json:"output_bytes,omitempty"`
	ProcessingMS int64      `json:"processing_ms,omitempty"`
	OutputReady  bool       `json:"output_ready"`
	Error        *ErrorInfo `json:"error,omitempty"`
}

func jobFromRecord(rec *store.JobRecord) *Job {
	j := &Job{
		ID:           rec.ID,
		Status:       Status(rec.Status),
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
		TemplateID:   rec.TemplateID,
		Filename:     rec.Filename,
		Raw:          rec.Raw,
		InputBytes:   rec.InputBytes,
		OutputBytes:  rec.OutputBytes,
		ProcessingMS: rec.ProcessingMS,
		OutputReady:  Status(rec.Status) == StatusCompleted,
	}
	if !rec.FinishedAt.IsZero() {
		t := rec.FinishedAt
		j.FinishedAt = &t
	}
	if rec.ErrorCode != "" {
		j.Error = &ErrorInfo{Stage: rec.ErrorStage, Code: rec.ErrorCode, Message: rec.ErrorMessage}
	}
	return j
}

// Event is published after every committed status change.
type Event struct {
	JobID     string    `json:"job_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives job events. It is called synchronously and must not block.
type Observer func(Event)
