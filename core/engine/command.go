package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
)

// Argument placeholders expanded by Command.
const (
	PlaceholderInput    = "{input}"
	PlaceholderOutput   = "{output}"
	PlaceholderTemplate = "{template}"
	PlaceholderStyles   = "{styles}"
)

// DefaultArgs suits pandoc-style converters.
var DefaultArgs = []string{PlaceholderInput, "-o", PlaceholderOutput, "--reference-doc=" + PlaceholderTemplate}

const (
	stderrTail = 2048

	// waitDelay bounds how long Render waits for pipes after the process is killed.
	waitDelay = 2 * time.Second
)

// Injectable functions for testing.
var (
	execLookPath = exec.LookPath
	osMkdirTemp  = os.MkdirTemp
)

// Command runs an external converter for every render. The document is
// written to input.md and its style snapshot to styles.json inside a private
// work directory; the converter must write the finished document to the
// {output} path.
type Command struct {
	Path string
	Args []string
	Env  []string

	// TempDir is the parent of per-render work directories; empty means the
	// system default.
	TempDir string
}

// NewCommand creates a Command engine. Nil args selects DefaultArgs.
func NewCommand(path string, args []string) *Command {
	if args == nil {
		args = DefaultArgs
	}
	return &Command{Path: path, Args: args}
}

// Render implements Engine. The call is bounded by ctx.
func (c *Command) Render(ctx context.Context, doc *report.Document, templatePath string) ([]byte, error) {
	bin, err := execLookPath(c.Path)
	if err != nil {
		return nil, &errors.EngineError{Op: "start", Message: "rendering engine unavailable", Err: err}
	}

	workDir, err := osMkdirTemp(c.TempDir, "hwpx-render-*")
	if err != nil {
		return nil, &errors.EngineError{Op: "start", Err: fmt.Errorf("failed to create work dir: %w", err)}
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input.md")
	output := filepath.Join(workDir, "output.hwpx")
	styles := filepath.Join(workDir, "styles.json")

	if err := os.WriteFile(input, []byte(doc.Markdown()), 0600); err != nil {
		return nil, &errors.EngineError{Op: "start", Err: fmt.Errorf("failed to write input: %w", err)}
	}
	sidecar, err := doc.StylesJSON()
	if err != nil {
		return nil, &errors.EngineError{Op: "start", Err: err}
	}
	if err := os.WriteFile(styles, sidecar, 0600); err != nil {
		return nil, &errors.EngineError{Op: "start", Err: fmt.Errorf("failed to write styles: %w", err)}
	}

	args := expandArgs(c.Args, map[string]string{
		PlaceholderInput:    input,
		PlaceholderOutput:   output,
		PlaceholderTemplate: templatePath,
		PlaceholderStyles:   styles,
	})

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = workDir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(append(os.Environ(), "LC_ALL=C.UTF-8"), c.Env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, Classify(ctx, ctx.Err())
		}
		return nil, &errors.EngineError{
			Op:      "render",
			Message: exitMessage(err),
			Err:     fmt.Errorf("%w: %s", err, tail(stderr.String())),
		}
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, &errors.EngineError{Op: "output", Message: "engine produced no output", Err: err}
	}
	if len(data) == 0 {
		return nil, &errors.EngineError{Op: "output", Message: "engine produced an empty document"}
	}
	return data, nil
}

// expandArgs substitutes placeholders. An argument that references
// {template} is dropped when no template is given.
func expandArgs(args []string, values map[string]string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if strings.Contains(a, PlaceholderTemplate) && values[PlaceholderTemplate] == "" {
			continue
		}
		for k, v := range values {
			a = strings.ReplaceAll(a, k, v)
		}
		out = append(out, a)
	}
	return out
}

func exitMessage(err error) string {
	if ee, ok := err.(*exec.ExitError); ok {
		return fmt.Sprintf("exit status %d", ee.ExitCode())
	}
	return "engine did not run"
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}
