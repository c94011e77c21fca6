// Package store provides the SQLite implementation of domain.Repository.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"smart-mcp/internal/domain"
)

// SQLite persists artifacts in a single table with automatic schema
// creation. Tags are stored as a JSON array in a TEXT column.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file (and parent directories) if needed and
// prepares the schema. WAL mode is enabled for concurrent readers.
func Open(path string) (*SQLite, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLite) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			name        TEXT NOT NULL,
			role        TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			code        TEXT NOT NULL DEFAULT '',
			tags        TEXT NOT NULL DEFAULT '[]',
			updated_at  TEXT NOT NULL,

			CHECK (kind IN ('prompt', 'resource', 'tool'))
		);

		CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

const artifactColumns = "id, kind, name, role, content, description, category, code, tags, updated_at"

func (s *SQLite) Insert(ctx context.Context, a domain.Artifact) error {
	tags, err := marshalTags(a.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (`+artifactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Name, string(a.Role), a.Content,
		a.Description, a.Category, a.Code, tags, a.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting artifact %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, a domain.Artifact) error {
	tags, err := marshalTags(a.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE artifacts
		 SET name = ?, role = ?, content = ?, description = ?, category = ?, code = ?, tags = ?, updated_at = ?
		 WHERE id = ?`,
		a.Name, string(a.Role), a.Content, a.Description, a.Category, a.Code,
		tags, a.UpdatedAt.Format(timeLayout), a.ID)
	if err != nil {
		return fmt.Errorf("updating artifact %s: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating artifact %s: %w", a.ID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (domain.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Artifact{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("reading artifact %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLite) List(ctx context.Context, kind domain.Kind) ([]domain.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts ORDER BY id`
	args := []any{}
	if kind != "" {
		query = `SELECT ` + artifactColumns + ` FROM artifacts WHERE kind = ? ORDER BY id`
		args = append(args, string(kind))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting artifact %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting artifact %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

const timeLayout = "2006-01-02T15:04:05Z"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (domain.Artifact, error) {
	var a domain.Artifact
	var kind, role, tags, updatedAt string
	if err := row.Scan(&a.ID, &kind, &a.Name, &role, &a.Content,
		&a.Description, &a.Category, &a.Code, &tags, &updatedAt); err != nil {
		return domain.Artifact{}, err
	}
	a.Kind = domain.Kind(kind)
	a.Role = domain.PromptRole(role)
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return domain.Artifact{}, fmt.Errorf("decoding tags for %s: %w", a.ID, err)
	}
	if len(a.Tags) == 0 {
		a.Tags = nil
	}
	t, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("decoding updated_at for %s: %w", a.ID, err)
	}
	a.UpdatedAt = t
	return a, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}
