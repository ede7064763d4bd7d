package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where the Postgres migrations live, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

// Runner applies one directory of goose SQL migrations to Postgres.
type Runner struct {
	provider *goose.Provider
	out      io.Writer
}

func NewRunner(db *sql.DB, dir string, out io.Writer) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	if out == nil {
		out = io.Discard
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %q: %w", dir, err)
	}
	return &Runner{provider: provider, out: out}, nil
}

// Run is a one-shot Apply.
func Run(ctx context.Context, db *sql.DB, dir, command string) error {
	runner, err := NewRunner(db, dir, nil)
	if err != nil {
		return err
	}
	return runner.Apply(ctx, command)
}

// Apply runs up, down or status.
func (r *Runner) Apply(ctx context.Context, command string) error {
	switch command {
	case "up":
		results, err := r.provider.Up(ctx)
		r.report(results...)
		return wrapGoose(command, err)
	case "down":
		result, err := r.provider.Down(ctx)
		if result != nil {
			r.report(result)
		}
		return wrapGoose(command, err)
	case "status":
		statuses, err := r.provider.Status(ctx)
		if err != nil {
			return wrapGoose(command, err)
		}
		for _, st := range statuses {
			state := "pending"
			if st.State == goose.StateApplied {
				state = "applied " + st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(r.out, "%-56s %s\n", filepath.Base(st.Source.Path), state)
		}
		return nil
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
}

// MigrateTo moves the schema up or down until it sits at version.
func (r *Runner) MigrateTo(ctx context.Context, version string) error {
	target, err := ParseVersion(version)
	if err != nil {
		return err
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}
	if current == target {
		return nil
	}

	var results []*goose.MigrationResult
	if current < target {
		results, err = r.provider.UpTo(ctx, target)
	} else {
		results, err = r.provider.DownTo(ctx, target)
	}
	r.report(results...)
	return wrapGoose(fmt.Sprintf("migrate to %d", target), err)
}

func (r *Runner) report(results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fmt.Fprintf(r.out, "%-4s %s (%s)\n", res.Direction, filepath.Base(res.Source.Path), res.Duration.Round(time.Millisecond))
	}
}

func wrapGoose(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
