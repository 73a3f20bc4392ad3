// Package doctor validates inbox configuration before the service starts.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/mattjoyce/inbox/internal/config"
	"github.com/mattjoyce/inbox/internal/storage"
	"github.com/mattjoyce/inbox/internal/webhook"
)

const (
	minSecretLength = 32
	maxSaneBodySize = 10 << 20
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a configuration.
type Doctor struct {
	cfg *config.Config

	// checkFilesystem is swapped in tests.
	checkFilesystem func(path string) error
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, checkFilesystem: storage.ValidateSQLiteFilesystem}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateService(r)
	d.validateHTTP(r)
	d.validateWebhook(r)
	d.validateStore(r)
	d.validateQuery(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateService(r *Result) {
	switch d.cfg.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("must be one of debug, info, warn, error (got %q)", d.cfg.Service.LogLevel))
	}
}

func (d *Doctor) validateHTTP(r *Result) {
	host, port, err := net.SplitHostPort(d.cfg.HTTP.Listen)
	if err != nil {
		d.addError(r, "http", "http.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.HTTP.Listen, err))
		return
	}
	if port == "" {
		d.addError(r, "http", "http.listen", "listen address has no port")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		d.addWarning(r, "http", "http.listen", "listening on all interfaces; put a TLS-terminating proxy in front")
	}
	if d.cfg.HTTP.ReadTimeout == 0 || d.cfg.HTTP.WriteTimeout == 0 {
		d.addWarning(r, "http", "http", "zero read or write timeout leaves slow clients unbounded")
	}
}

func (d *Doctor) validateWebhook(r *Result) {
	secret := d.cfg.Webhook.Secret
	switch {
	case config.UnresolvedEnvVar(secret) != "":
		d.addError(r, "webhook", "webhook.secret",
			fmt.Sprintf("environment variable ${%s} is not set", config.UnresolvedEnvVar(secret)))
	case secret == "":
		d.addError(r, "webhook", "webhook.secret", "secret is required (config file or WEBHOOK_SECRET)")
	case len(secret) < minSecretLength:
		d.addWarning(r, "webhook", "webhook.secret",
			fmt.Sprintf("secret is %d bytes; use at least %d random bytes", len(secret), minSecretLength))
	}

	if strings.TrimSpace(d.cfg.Webhook.SignatureHeader) == "" {
		d.addError(r, "webhook", "webhook.signature_header", "signature header must not be empty")
	}

	size, err := webhook.ParseMaxBodySize(d.cfg.Webhook.MaxBodySize)
	switch {
	case err != nil:
		d.addError(r, "webhook", "webhook.max_body_size", err.Error())
	case size > maxSaneBodySize:
		d.addWarning(r, "webhook", "webhook.max_body_size",
			fmt.Sprintf("%d bytes is unusually large for a message delivery", size))
	}
}

func (d *Doctor) validateStore(r *Result) {
	dsn := d.cfg.Store.DSN
	if name := config.UnresolvedEnvVar(dsn); name != "" {
		d.addError(r, "store", "store.dsn", fmt.Sprintf("environment variable ${%s} is not set", name))
		return
	}
	if dsn == "" {
		d.addError(r, "store", "store.dsn", "dsn is required")
		return
	}

	switch d.cfg.Store.Driver {
	case storage.DriverSQLite:
		if dsn == ":memory:" {
			d.addWarning(r, "store", "store.dsn", "in-memory sqlite loses every message on restart")
			return
		}
		if err := d.checkFilesystem(dsn); err != nil {
			d.addError(r, "store", "store.dsn", err.Error())
		}
	case storage.DriverBadger:
		if dsn == ":memory:" {
			d.addWarning(r, "store", "store.dsn", "in-memory badger loses every message on restart")
		}
	case storage.DriverPostgres:
		u, err := url.Parse(dsn)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			// key=value DSNs are valid too; only URL forms are inspected.
			if !strings.Contains(dsn, "=") {
				d.addError(r, "store", "store.dsn", "postgres dsn must be a URL or key=value list")
			}
			return
		}
		if u.Query().Get("sslmode") == "disable" {
			d.addWarning(r, "store", "store.dsn", "sslmode=disable sends message text in clear")
		}
	default:
		d.addError(r, "store", "store.driver",
			fmt.Sprintf("must be one of %s (got %q)", strings.Join(storage.Drivers, ", "), d.cfg.Store.Driver))
	}
}

func (d *Doctor) validateQuery(r *Result) {
	q := d.cfg.Query
	if q.MaxLimit <= 0 {
		d.addError(r, "query", "query.max_limit", "must be positive")
		return
	}
	if q.DefaultLimit <= 0 || q.DefaultLimit > q.MaxLimit {
		d.addError(r, "query", "query.default_limit",
			fmt.Sprintf("must be between 1 and query.max_limit (%d)", q.MaxLimit))
	}
	if q.MaxLimit > 1000 {
		d.addWarning(r, "query", "query.max_limit", "pages above 1000 rows make /messages slow")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, label string, is Issue) {
	if is.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, is.Category, is.Field, is.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", label, is.Category, is.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
