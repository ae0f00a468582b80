// Package config holds the server's settings. Values start from Default,
// are overridden by DOC_MCP_* environment variables, and then by flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "DOC_MCP_"

// Config is the complete server configuration.
type Config struct {
	LogLevel string

	WorkspaceRoot   string
	WorkspacePrefix string
	SweepInterval   time.Duration
	SweepMaxAge     time.Duration

	Pdftoppm  string
	Pdftotext string
	Tesseract string
	Soffice   string

	RenderTimeout time.Duration
	OCRTimeout    time.Duration
	OfficeTimeout time.Duration

	OfficeSlots       int
	RenderConcurrency int
	OCRConcurrency    int
	BatchWorkers      int
	MaxConcurrentJobs int
	JobTimeout        time.Duration

	// InProcessOCR selects the gosseract engine when the binary was built
	// with it.
	InProcessOCR   bool
	TessdataPrefix string

	// AllowMissingTools starts the server even when external tools are
	// absent; operations needing them then fail with tool_not_found.
	AllowMissingTools bool

	OutputDir string

	S3Region  string
	S3Profile string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:          "info",
		WorkspacePrefix:   "ws-",
		SweepInterval:     10 * time.Minute,
		SweepMaxAge:       time.Hour,
		Pdftoppm:          "pdftoppm",
		Pdftotext:         "pdftotext",
		Tesseract:         "tesseract",
		Soffice:           "soffice",
		RenderTimeout:     2 * time.Minute,
		OCRTimeout:        2 * time.Minute,
		OfficeTimeout:     5 * time.Minute,
		OfficeSlots:       1,
		RenderConcurrency: 4,
		OCRConcurrency:    2,
		BatchWorkers:      4,
		MaxConcurrentJobs: 4,
		JobTimeout:        10 * time.Minute,
	}
}

// field binds one setting to its environment and flag names.
type field struct {
	name  string
	usage string
	ptr   any
}

func (c *Config) fields() []field {
	return []field{
		{"log-level", "log level: debug, info, warn, error", &c.LogLevel},
		{"workspace-root", "directory holding per-job workspaces (default: system temp)", &c.WorkspaceRoot},
		{"workspace-prefix", "name prefix of workspace directories", &c.WorkspacePrefix},
		{"sweep-interval", "interval between orphaned-workspace sweeps", &c.SweepInterval},
		{"sweep-max-age", "age after which an unreleased workspace is swept", &c.SweepMaxAge},
		{"pdftoppm", "pdftoppm executable", &c.Pdftoppm},
		{"pdftotext", "pdftotext executable", &c.Pdftotext},
		{"tesseract", "tesseract executable", &c.Tesseract},
		{"soffice", "LibreOffice soffice executable", &c.Soffice},
		{"render-timeout", "timeout per page render", &c.RenderTimeout},
		{"ocr-timeout", "timeout per OCR invocation", &c.OCRTimeout},
		{"office-timeout", "timeout per office conversion", &c.OfficeTimeout},
		{"office-slots", "concurrent LibreOffice instances", &c.OfficeSlots},
		{"render-concurrency", "parallel page renders per job", &c.RenderConcurrency},
		{"ocr-concurrency", "parallel OCR pages per job", &c.OCRConcurrency},
		{"batch-workers", "parallel items per batch", &c.BatchWorkers},
		{"max-concurrent-jobs", "jobs served concurrently", &c.MaxConcurrentJobs},
		{"job-timeout", "default job deadline", &c.JobTimeout},
		{"inprocess-ocr", "use the in-process OCR engine when available", &c.InProcessOCR},
		{"tessdata-prefix", "tessdata directory for in-process OCR", &c.TessdataPrefix},
		{"allow-missing-tools", "start even when external tools are not installed", &c.AllowMissingTools},
		{"output-dir", "default directory for delivered outputs", &c.OutputDir},
		{"s3-region", "AWS region for s3:// inputs and outputs", &c.S3Region},
		{"s3-profile", "AWS shared-config profile", &c.S3Profile},
	}
}

// RequiredTools lists the executables that must resolve at startup. The
// tesseract binary is not needed when in-process OCR is selected.
func (c Config) RequiredTools() []string {
	names := []string{c.Pdftoppm, c.Pdftotext}
	if !c.InProcessOCR {
		names = append(names, c.Tesseract)
	}
	return append(names, c.Soffice)
}

// EnvName returns the environment variable for a flag name.
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// ApplyEnv overrides settings from lookup, normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for _, f := range c.fields() {
		v, ok := lookup(EnvName(f.name))
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := set(f.ptr, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvName(f.name), err))
		}
	}
	return errors.Join(errs...)
}

// RegisterFlags binds every setting to a flag on fs, using current values
// as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	for _, f := range c.fields() {
		switch p := f.ptr.(type) {
		case *string:
			fs.StringVar(p, f.name, *p, f.usage)
		case *int:
			fs.IntVar(p, f.name, *p, f.usage)
		case *bool:
			fs.BoolVar(p, f.name, *p, f.usage)
		case *time.Duration:
			fs.DurationVar(p, f.name, *p, f.usage)
		}
	}
}

func set(ptr any, v string) error {
	switch p := ptr.(type) {
	case *string:
		*p = v
	case *int:
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%q is not an integer", v)
		}
		*p = n
	case *bool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%q is not a boolean", v)
		}
		*p = b
	case *time.Duration:
		d, err := time.ParseDuration(v)
		if err != nil {
			// Bare numbers are seconds.
			n, nerr := strconv.Atoi(v)
			if nerr != nil {
				return fmt.Errorf("%q is not a duration", v)
			}
			d = time.Duration(n) * time.Second
		}
		*p = d
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"office-slots":        c.OfficeSlots,
		"render-concurrency":  c.RenderConcurrency,
		"ocr-concurrency":     c.OCRConcurrency,
		"batch-workers":       c.BatchWorkers,
		"max-concurrent-jobs": c.MaxConcurrentJobs,
	}
	for _, f := range c.fields() {
		if n, ok := positive[f.name]; ok && n < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", f.name, n))
		}
	}
	timeouts := map[string]time.Duration{
		"render-timeout": c.RenderTimeout,
		"ocr-timeout":    c.OCRTimeout,
		"office-timeout": c.OfficeTimeout,
		"sweep-interval": c.SweepInterval,
		"sweep-max-age":  c.SweepMaxAge,
	}
	for _, f := range c.fields() {
		if d, ok := timeouts[f.name]; ok && d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", f.name, d))
		}
	}
	if c.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("job-timeout must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
