package crossproject

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// SQLite driver, registered as "sqlite3".
	_ "github.com/mattn/go-sqlite3"

	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
)

// ConsentStatus is a project's cross-project search participation.
type ConsentStatus string

const (
	StatusOptedIn  ConsentStatus = "opted_in"
	StatusOptedOut ConsentStatus = "opted_out"
)

const consentSchema = `
CREATE TABLE IF NOT EXISTS project_consent (
	project    TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Registry persists per-project consent for cross-project search. Projects
// absent from the registry are treated as opted out.
type Registry struct {
	db     *sql.DB
	logger logging.Logger
}

// NewRegistry opens (creating if needed) the consent database at path.
func NewRegistry(path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("cannot create consent directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open consent registry %s: %w", path, err)
	}
	if _, err := db.Exec(consentSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot initialize consent schema: %w", err)
	}
	return &Registry{
		db:     db,
		logger: logging.WithComponent("crossproject"),
	}, nil
}

// OptIn records the project as searchable. Repeated calls are no-ops.
func (r *Registry) OptIn(ctx context.Context, project string) error {
	return r.setStatus(ctx, project, StatusOptedIn)
}

// OptOut removes the project from the searchable set. Repeated calls are
// no-ops.
func (r *Registry) OptOut(ctx context.Context, project string) error {
	return r.setStatus(ctx, project, StatusOptedOut)
}

func (r *Registry) setStatus(ctx context.Context, project string, status ConsentStatus) error {
	project = strings.TrimSpace(project)
	if project == "" {
		return errors.NewValidationField("project_name", "cannot be empty")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_consent (project, status, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(project) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		project, string(status), time.Now().Unix(),
	)
	if err != nil {
		return errors.NewStorageUnavailable("cannot update consent registry", err)
	}
	r.logger.InfoContext(ctx, "consent updated", "project", project, "status", string(status))
	return nil
}

// Status returns the recorded consent for a project; unknown projects are
// opted out.
func (r *Registry) Status(ctx context.Context, project string) (ConsentStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM project_consent WHERE project = ?`, project,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return StatusOptedOut, nil
	}
	if err != nil {
		return "", errors.NewStorageUnavailable("cannot read consent registry", err)
	}
	return ConsentStatus(status), nil
}

// OptedIn returns the sorted list of projects that consented to
// cross-project search.
func (r *Registry) OptedIn(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT project FROM project_consent WHERE status = ? ORDER BY project`,
		string(StatusOptedIn),
	)
	if err != nil {
		return nil, errors.NewStorageUnavailable("cannot read consent registry", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var project string
		if err := rows.Scan(&project); err != nil {
			return nil, errors.NewStorageUnavailable("cannot read consent registry", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailable("cannot read consent registry", err)
	}
	return projects, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}
