package indexstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_index_builds (
    id          BIGSERIAL PRIMARY KEY,
    project     TEXT        NOT NULL,
    fingerprint TEXT        NOT NULL,
    doc_count   INTEGER     NOT NULL,
    term_count  INTEGER     NOT NULL,
    payload     BYTEA       NOT NULL,
    built_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS search_index_builds_project_built_at
    ON search_index_builds (project, built_at DESC, id DESC);
`

// PostgresStore keeps the build history of one project in the
// search_index_builds table.
type PostgresStore struct {
	client  *postgres.Client
	project string
	// keep is how many builds per project survive a Save; 0 keeps all.
	keep int
}

func NewPostgresStore(client *postgres.Client, project string, keep int) *PostgresStore {
	return &PostgresStore{client: client, project: project, keep: keep}
}

func (s *PostgresStore) String() string {
	return "postgres:" + s.project
}

// EnsureSchema creates the builds table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating search_index_builds: %w", err)
	}
	return nil
}

// Load returns the newest build of the project.
func (s *PostgresStore) Load(ctx context.Context) (*Build, error) {
	var (
		id      int64
		b       = &Build{Project: s.project}
		payload []byte
	)
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT id, fingerprint, payload, built_at FROM search_index_builds
		 WHERE project = $1 ORDER BY built_at DESC, id DESC LIMIT 1`,
		s.project,
	).Scan(&id, &b.Fingerprint, &payload, &b.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no search index build for project %q", apperrors.ErrNotFound, s.project)
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest build: %w", err)
	}
	b.Location = s.String() + "#" + strconv.FormatInt(id, 10)

	b.Index, err = searchindex.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Location, err)
	}
	if got := b.Index.Fingerprint(); got != b.Fingerprint {
		return nil, fmt.Errorf("%w: %s: stored fingerprint %s, payload hashes to %s",
			apperrors.ErrMalformedIndex, b.Location, b.Fingerprint, got)
	}
	return b, nil
}

// Save appends the build and prunes the project's history to the newest
// keep builds.
func (s *PostgresStore) Save(ctx context.Context, b *Build) error {
	payload := searchindex.Marshal(b.Index)
	stats := b.Index.Stats()
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO search_index_builds (project, fingerprint, doc_count, term_count, payload, built_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			s.project, b.Fingerprint, stats.Documents, stats.Terms, payload, b.BuiltAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting build: %w", err)
		}
		if s.keep > 0 {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM search_index_builds WHERE project = $1 AND id NOT IN (
				   SELECT id FROM search_index_builds WHERE project = $1
				   ORDER BY built_at DESC, id DESC LIMIT $2)`,
				s.project, s.keep,
			)
			if err != nil {
				return fmt.Errorf("pruning builds: %w", err)
			}
		}
		b.Location = s.String() + "#" + strconv.FormatInt(id, 10)
		return nil
	})
}
