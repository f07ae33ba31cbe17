// Package migrations exposes the embedded dispatch DDL and registers it
// against a persistence client, one filesystem per dialect. Postgres files
// sit at the migrations root; the sqlite variants live under sqlite/.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	dispatch "github.com/goliatone/go-dispatch"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	defaultSourceLabel = "go-dispatch"
	migrationsRootPath = "data/sql/migrations"
	sqliteSubdir       = "sqlite"
)

// Source pairs a dialect with its migration filesystem.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives each selected dialect's filesystem, typically
// forwarding it to persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Registration captures what Register resolved and applied.
type Registration struct {
	SourceLabel string
	Targets     []string
	Sources     []Source
}

type Option func(*Registration)

// WithDialectSourceLabel overrides the label passed to the register callback.
func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects. By
// default both postgres and sqlite are registered.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.Targets = normalized
		}
	}
}

// WithSources replaces the embedded filesystems, for callers that ship their
// own schema variants.
func WithSources(sources ...Source) Option {
	return func(r *Registration) {
		kept := make([]Source, 0, len(sources))
		for _, src := range sources {
			dialect := strings.TrimSpace(strings.ToLower(src.Dialect))
			if dialect == "" || src.FS == nil {
				continue
			}
			src.Dialect = dialect
			kept = append(kept, src)
		}
		if len(kept) > 0 {
			r.Sources = kept
		}
	}
}

// Sources resolves the embedded migration filesystems and verifies each one
// actually contains *.up.sql files.
func Sources() ([]Source, error) {
	base, err := fs.Sub(dispatch.GetMigrationsFS(), migrationsRootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", migrationsRootPath, err)
	}
	sqliteFS, err := fs.Sub(base, sqliteSubdir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: migrationsRootPath, FS: base},
		{Dialect: DialectSQLite, Path: migrationsRootPath + "/" + sqliteSubdir, FS: sqliteFS},
	}
	for _, src := range sources {
		matches, globErr := fs.Glob(src.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", src.Dialect, src.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", src.Dialect, src.Path)
		}
	}
	return sources, nil
}

// Register resolves the migration sources and hands each selected dialect to
// registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: defaultSourceLabel,
		Targets:     []string{DialectPostgres, DialectSQLite},
	}

	sources, err := Sources()
	if err != nil {
		return reg, err
	}
	reg.Sources = sources

	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Targets) == 0 {
		return reg, fmt.Errorf("migrations: validation targets are required")
	}
	if len(reg.Sources) == 0 {
		return reg, fmt.Errorf("migrations: sources are required")
	}

	selected := make(map[string]struct{}, len(reg.Targets))
	for _, target := range reg.Targets {
		selected[target] = struct{}{}
	}
	for _, src := range reg.Sources {
		if _, ok := selected[src.Dialect]; !ok {
			continue
		}
		if err := registerFn(ctx, src.Dialect, reg.SourceLabel, src.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", src.Dialect, src.Path, err)
		}
	}
	return reg, nil
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
