// Command hwpxreport converts Markdown-style drafts into government report
// documents. It runs one-off conversions locally and serves the REST API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/hwpxreport/core/cas"
	"github.com/FocuswithJustin/hwpxreport/core/engine"
	"github.com/FocuswithJustin/hwpxreport/core/hwpx"
	"github.com/FocuswithJustin/hwpxreport/core/markup"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/api"
	"github.com/FocuswithJustin/hwpxreport/internal/config"
	"github.com/FocuswithJustin/hwpxreport/internal/guide"
	"github.com/FocuswithJustin/hwpxreport/internal/jobs"
	"github.com/FocuswithJustin/hwpxreport/internal/logging"
	"github.com/FocuswithJustin/hwpxreport/internal/store"
	"github.com/FocuswithJustin/hwpxreport/internal/templates"
	"github.com/FocuswithJustin/hwpxreport/internal/validation"
)

const version = "0.4.0"

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for hwpxreport.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"YAML configuration file" type:"existingfile"`
	Storage   string `name:"storage" help:"Storage root (overrides storage.root)" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level: debug, info, warn, error"`
	LogFormat string `name:"log-format" help:"Log format: json or text"`

	Convert   ConvertCmd     `cmd:"" help:"Convert a source file to HWPX"`
	Preview   PreviewCmd     `cmd:"" help:"Print the prefixed report lines of a source file"`
	Markup    MarkupGroup    `cmd:"" help:"Structural markup for live editing"`
	Templates TemplatesGroup `cmd:"" help:"Reference template management"`
	Styles    StylesCmd      `cmd:"" help:"Print the resolved style settings"`
	Guide     GuideCmd       `cmd:"" help:"Print the writing guide"`
	Prompt    PromptCmd      `cmd:"" help:"Print a drafting prompt for an AI assistant"`
	Serve     ServeCmd       `cmd:"" help:"Start the REST API server"`
	Sweep     SweepCmd       `cmd:"" help:"Expire overdue jobs and remove orphaned storage"`
	Version   VersionCmd     `cmd:"" help:"Print version information"`
}

// MarkupGroup converts between source text and structural markup.
type MarkupGroup struct {
	To   MarkupToCmd   `cmd:"" help:"Render source text as markup"`
	From MarkupFromCmd `cmd:"" help:"Reconstruct source text from markup"`
}

// TemplatesGroup manages reference templates.
type TemplatesGroup struct {
	List   TemplatesListCmd   `cmd:"" help:"List stored templates"`
	Upload TemplatesUploadCmd `cmd:"" help:"Upload an HWPX template"`
	Delete TemplatesDeleteCmd `cmd:"" help:"Delete a template"`
	Init   TemplatesInitCmd   `cmd:"" help:"Write a starter HWPX template"`
}

// StyleFlags selects style overrides shared by several commands.
type StyleFlags struct {
	Styles     string `name:"styles" help:"Compact style overrides, e.g. 'title=circled:18:bold; level1=■'"`
	StylesFile string `name:"styles-file" help:"JSON style overrides keyed by block kind" type:"existingfile"`
}

// Fragment parses the compact spec and the JSON file. The compact spec wins.
func (f StyleFlags) Fragment() (report.Fragment, error) {
	var frag report.Fragment
	if f.StylesFile != "" {
		data, err := os.ReadFile(f.StylesFile)
		if err != nil {
			return nil, fmt.Errorf("reading styles file: %w", err)
		}
		if frag, err = report.ParseFragmentJSON(data); err != nil {
			return nil, err
		}
	}
	spec, err := report.ParseStyleSpec(f.Styles)
	if err != nil {
		return nil, err
	}
	return frag.Merge(spec), nil
}

// Settings resolves the flags over the configured base styles.
func (f StyleFlags) Settings(cfg *config.Config) (report.Settings, error) {
	base, err := cfg.StyleFragment()
	if err != nil {
		return report.Settings{}, err
	}
	overrides, err := f.Fragment()
	if err != nil {
		return report.Settings{}, err
	}
	return report.Resolve(overrides, base)
}

// ConvertCmd runs one conversion job synchronously.
type ConvertCmd struct {
	Input        string `arg:"" help:"Source text file" type:"existingfile"`
	Out          string `short:"o" help:"Output path (default: <filename>.hwpx in the current directory)" type:"path"`
	Template     string `short:"t" help:"Template id (default: the default template, if any)"`
	Filename     string `help:"Output filename recorded on the job"`
	NoPreprocess bool   `name:"no-preprocess" help:"Pass the source to the engine without prefixes"`
	StyleFlags   `embed:""`
}

func (c *ConvertCmd) Run() error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	source, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	overrides, err := c.Fragment()
	if err != nil {
		return err
	}

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	filename := c.Filename
	if filename == "" {
		filename = strings.TrimSuffix(filepath.Base(c.Input), filepath.Ext(c.Input))
	}
	job, err := svc.jobs.Create(ctx, jobs.Request{
		Source:     string(source),
		TemplateID: c.Template,
		Styles:     overrides,
		Filename:   filename,
		Raw:        c.NoPreprocess,
	})
	if err != nil {
		return err
	}
	job, err = svc.jobs.Process(ctx, job.ID)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusCompleted {
		return fmt.Errorf("conversion failed at %s: %s", job.Error.Stage, job.Error.Message)
	}

	data, err := svc.jobs.Result(ctx, job.ID)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = job.Filename
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	fmt.Fprintf(stdout, "Converted: %s\n", c.Input)
	fmt.Fprintf(stdout, "  Job ID: %s\n", job.ID)
	fmt.Fprintf(stdout, "  Size: %d bytes\n", job.OutputBytes)
	fmt.Fprintf(stdout, "  Time: %d ms\n", job.ProcessingMS)
	fmt.Fprintf(stdout, "Created: %s\n", out)
	return nil
}

// PreviewCmd prints the report lines a source file renders to.
type PreviewCmd struct {
	Input      string `arg:"" help:"Source text file" type:"existingfile"`
	Stats      bool   `help:"Print block counts instead of lines"`
	StyleFlags `embed:""`
}

func (c *PreviewCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := c.Settings(cfg)
	if err != nil {
		return err
	}
	source, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	doc := report.NewDocument(report.NewTransformer(), string(source), settings)
	if c.Stats {
		return writeJSON(doc.Stats())
	}
	for _, line := range doc.Lines() {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

// MarkupToCmd renders source text as structural markup.
type MarkupToCmd struct {
	Input      string `arg:"" help:"Source text file" type:"existingfile"`
	StyleFlags `embed:""`
}

func (c *MarkupToCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := c.Settings(cfg)
	if err != nil {
		return err
	}
	source, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	blocks := report.NewTransformer().TransformText(string(source))
	_, err = stdout.Write(markup.ToMarkup(blocks, settings))
	return err
}

// MarkupFromCmd reconstructs source lines from markup.
type MarkupFromCmd struct {
	Input string `arg:"" help:"Markup file" type:"existingfile"`
}

func (c *MarkupFromCmd) Run() error {
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	lines, err := markup.FromMarkup(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, strings.Join(lines, "\n"))
	return nil
}

// TemplatesListCmd lists stored templates.
type TemplatesListCmd struct {
	JSON bool `name:"json" help:"Print JSON"`
}

func (c *TemplatesListCmd) Run() error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	list, err := svc.templates.List(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(stdout, "No templates stored.")
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tDEFAULT\tUPLOADED")
	for _, t := range list {
		def := ""
		if t.Default {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Name, t.Size, def, t.UploadedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// TemplatesUploadCmd stores an HWPX template.
type TemplatesUploadCmd struct {
	Path        string `arg:"" help:"HWPX template file" type:"existingfile"`
	Name        string `help:"Template name (default: file name)"`
	Description string `help:"Template description"`
	Default     bool   `help:"Use as the default template"`
}

func (c *TemplatesUploadCmd) Run() error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	tpl, existed, err := uploadTemplate(ctx, svc.templates, c.Path, templates.UploadOptions{
		Name:        c.Name,
		Description: c.Description,
		Default:     c.Default,
	})
	if err != nil {
		return err
	}
	if existed {
		fmt.Fprintf(stdout, "Already stored: %s\n", tpl.ID)
	} else {
		fmt.Fprintf(stdout, "Uploaded: %s\n", tpl.ID)
	}
	fmt.Fprintf(stdout, "  Name: %s\n", tpl.Name)
	fmt.Fprintf(stdout, "  SHA-256: %s\n", tpl.Checksum)
	return nil
}

// TemplatesDeleteCmd removes a template.
type TemplatesDeleteCmd struct {
	ID string `arg:"" help:"Template id"`
}

func (c *TemplatesDeleteCmd) Run() error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.templates.Delete(ctx, c.ID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted: %s\n", c.ID)
	return nil
}

// TemplatesInitCmd writes a starter template whose outline styles follow
// the resolved settings.
type TemplatesInitCmd struct {
	Out        string `arg:"" help:"Output path" type:"path"`
	StyleFlags `embed:""`
}

func (c *TemplatesInitCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := c.Settings(cfg)
	if err != nil {
		return err
	}
	data, err := hwpx.Minimal(settings)
	if err != nil {
		return fmt.Errorf("building template: %w", err)
	}
	if err := os.WriteFile(c.Out, data, 0644); err != nil {
		return fmt.Errorf("writing template: %w", err)
	}
	fmt.Fprintf(stdout, "Created: %s\n", c.Out)
	return nil
}

// StylesCmd prints the resolved style snapshot.
type StylesCmd struct {
	Template   string `short:"t" help:"Include the styles of this template"`
	StyleFlags `embed:""`
}

func (c *StylesCmd) Run() error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	base, err := cfg.StyleFragment()
	if err != nil {
		return err
	}
	if c.Template != "" {
		svc, err := openServices(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()
		tplStyles, err := svc.templates.Styles(ctx, c.Template)
		if err != nil {
			return err
		}
		base = base.Merge(tplStyles)
	}
	overrides, err := c.Fragment()
	if err != nil {
		return err
	}
	settings, err := report.Resolve(overrides, base)
	if err != nil {
		return err
	}
	return writeJSON(settings)
}

// GuideCmd prints the writing guide.
type GuideCmd struct {
	HTML bool `name:"html" help:"Render as a standalone HTML page"`
}

func (c *GuideCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := StyleFlags{}.Settings(cfg)
	if err != nil {
		return err
	}
	g := guide.New(settings)
	if !c.HTML {
		fmt.Fprint(stdout, g.Markdown())
		return nil
	}
	page, err := g.HTML()
	if err != nil {
		return err
	}
	_, err = stdout.Write(page)
	return err
}

// PromptCmd prints an AI drafting prompt.
type PromptCmd struct {
	Topic string `arg:"" optional:"" help:"Report topic"`
}

func (c *PromptCmd) Run() error {
	p := guide.NewPrompt(c.Topic)
	fmt.Fprintln(stdout, p.Prompt)
	return nil
}

// ServeCmd starts the REST API.
type ServeCmd struct {
	Port    int    `help:"HTTP server port (overrides server.port)"`
	APIKey  string `name:"api-key" env:"HWPXREPORT_API_KEY" help:"Require this key in X-API-Key"`
	Engine  string `help:"Rendering engine command (overrides engine.command)"`
	Workers int    `help:"Worker count (overrides jobs.workers)"`
}

func (c *ServeCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Port > 0 {
		cfg.Server.Port = c.Port
	}
	if c.APIKey != "" {
		cfg.Server.APIKey = c.APIKey
	}
	if c.Engine != "" {
		cfg.Engine.Command = c.Engine
	}
	if c.Workers > 0 {
		cfg.Jobs.Workers = c.Workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.Templates.DefaultPath != "" {
		tpl, _, err := uploadTemplate(ctx, svc.templates, cfg.Templates.DefaultPath, templates.UploadOptions{Default: true})
		if err != nil {
			return fmt.Errorf("loading default template: %w", err)
		}
		logging.TemplateEvent("default_template_loaded", tpl.ID)
	}

	base, err := cfg.StyleFragment()
	if err != nil {
		return err
	}
	srv, err := api.New(api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIKey:         cfg.Server.APIKey,
		RateLimit: api.RateLimiterConfig{
			RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.Server.RateLimit.Burst,
		},
		BaseStyles: base,
	}, svc.jobs, svc.templates)
	if err != nil {
		return err
	}

	if err := svc.jobs.Start(ctx); err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// SweepCmd runs one expiry pass.
type SweepCmd struct{}

func (c *SweepCmd) Run() error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	rep, err := svc.jobs.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Expired: %d\n", rep.Expired)
	fmt.Fprintf(stdout, "Orphans removed: %d\n", rep.Orphans)
	fmt.Fprintf(stdout, "Skipped (busy): %d\n", rep.Skipped)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "hwpxreport version %s\n", version)
	return nil
}

// Helper functions

// loadConfig reads the configuration file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.Storage != "" {
		cfg.Storage.Root = CLI.Storage
	}
	if CLI.LogLevel != "" {
		cfg.Logging.Level = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.Logging.Format = CLI.LogFormat
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(level, format)
	return cfg, nil
}

// services bundles the stores and the job manager of one storage root.
type services struct {
	db        *store.DB
	templates *templates.Store
	jobs      *jobs.Manager
}

func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	if err := os.MkdirAll(cfg.Storage.Root, 0700); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	db, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	blobs, err := cas.NewStore(cfg.BlobsDir())
	if err != nil {
		db.Close()
		return nil, err
	}
	tpls := templates.New(db, blobs, cfg.Templates.MaxBytes)

	base, err := cfg.StyleFragment()
	if err != nil {
		db.Close()
		return nil, err
	}
	jm, err := jobs.NewManager(db, tpls, newEngine(cfg.Engine), jobs.Options{
		Root:           cfg.JobsDir(),
		MaxSourceBytes: cfg.Jobs.MaxSourceBytes,
		TTL:            cfg.Jobs.TTL,
		RenderTimeout:  cfg.Jobs.RenderTimeout,
		SweepInterval:  cfg.Jobs.SweepInterval,
		Workers:        cfg.Jobs.Workers,
		BaseStyles:     base,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &services{db: db, templates: tpls, jobs: jm}, nil
}

func (s *services) Close() {
	s.jobs.Close()
	s.db.Close()
}

func newEngine(cfg config.EngineConfig) engine.Engine {
	if cfg.Command == "" {
		return engine.Unavailable
	}
	var args []string
	if len(cfg.Args) > 0 {
		args = cfg.Args
	}
	return engine.NewCommand(cfg.Command, args)
}

func uploadTemplate(ctx context.Context, ts *templates.Store, path string, opts templates.UploadOptions) (*templates.Template, bool, error) {
	if err := validation.ValidateFilename(filepath.Base(path)); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading template: %w", err)
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ts.Upload(ctx, bytes.NewReader(data), opts)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("hwpxreport"),
		kong.Description("Convert Markdown-style drafts into government report HWPX documents"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
