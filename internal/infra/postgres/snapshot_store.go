package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/svn-crawler/internal/core/crawl"
)

var (
	// ErrSnapshotExists は同一リポジトリ・同一リビジョンのスナップショットが
	// 既に保存されている場合に返されます
	ErrSnapshotExists = errors.New("snapshot already exists for this repository and revision")
	// ErrSnapshotNotFound は指定されたスナップショットが存在しない場合に返されます
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// uniqueViolation は PostgreSQL の一意制約違反コード
const uniqueViolation = "23505"

// SnapshotStore はクロール結果のスナップショットを PostgreSQL に保存する
// リポジトリです。スナップショットは不変で、保存後の更新はありません。
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore は新しい SnapshotStore を作成します
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Init はスキーマを初期化します
func (s *SnapshotStore) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id UUID PRIMARY KEY,
	repo_url TEXT NOT NULL,
	revision BIGINT NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL,
	UNIQUE (repo_url, revision)
);
CREATE TABLE IF NOT EXISTS snapshot_paths (
	snapshot_id UUID NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	ord INTEGER NOT NULL,
	path TEXT NOT NULL,
	kind TEXT NOT NULL,
	props JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (snapshot_id, path)
);
CREATE INDEX IF NOT EXISTS idx_snapshot_paths_ord ON snapshot_paths (snapshot_id, ord);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Save はスナップショットを保存します。パス行は COPY でまとめて投入します。
func (s *SnapshotStore) Save(ctx context.Context, snap *crawl.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO snapshots (id, repo_url, revision, crawled_at) VALUES ($1, $2, $3, $4)`,
		snap.ID, snap.RepoURL, int64(snap.Revision), snap.CrawledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s@%d", ErrSnapshotExists, snap.RepoURL, snap.Revision)
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	entries := snap.Index.Entries()
	rows := make([][]any, 0, len(entries))
	for ord, e := range entries {
		props, err := json.Marshal(e.Props)
		if err != nil {
			return fmt.Errorf("failed to encode props for %q: %w", e.Path, err)
		}
		rows = append(rows, []any{snap.ID, ord, e.Path, string(e.Kind), props})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"snapshot_paths"},
		[]string{"snapshot_id", "ord", "path", "kind", "props"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy snapshot paths: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List はリポジトリのスナップショット一覧をリビジョン順に返します。
// repoURL が空の場合は全リポジトリを対象にします。
func (s *SnapshotStore) List(ctx context.Context, repoURL string) ([]*crawl.SnapshotMeta, error) {
	const query = `
SELECT s.id, s.repo_url, s.revision, s.crawled_at, count(p.path)
FROM snapshots s
LEFT JOIN snapshot_paths p ON p.snapshot_id = s.id
WHERE $1 = '' OR s.repo_url = $1
GROUP BY s.id
ORDER BY s.repo_url, s.revision
`
	rowset, err := s.pool.Query(ctx, query, repoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rowset.Close()

	var metas []*crawl.SnapshotMeta
	for rowset.Next() {
		var m crawl.SnapshotMeta
		var rev int64
		var count int64
		if err := rowset.Scan(&m.ID, &m.RepoURL, &rev, &m.CrawledAt, &count); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		m.Revision = crawl.Revision(rev)
		m.PathCount = int(count)
		metas = append(metas, &m)
	}
	if err := rowset.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot rows: %w", err)
	}

	return metas, nil
}

// Get はスナップショットをパスインデックスごと復元します
func (s *SnapshotStore) Get(ctx context.Context, id uuid.UUID) (*crawl.Snapshot, error) {
	snap := &crawl.Snapshot{ID: id}
	var rev int64
	err := s.pool.QueryRow(ctx,
		`SELECT repo_url, revision, crawled_at FROM snapshots WHERE id = $1`, id,
	).Scan(&snap.RepoURL, &rev, &snap.CrawledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap.Revision = crawl.Revision(rev)

	rowset, err := s.pool.Query(ctx,
		`SELECT path, kind, props FROM snapshot_paths WHERE snapshot_id = $1 ORDER BY ord`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot paths: %w", err)
	}
	defer rowset.Close()

	var entries []*crawl.PathEntry
	for rowset.Next() {
		var e crawl.PathEntry
		var kind string
		var props []byte
		if err := rowset.Scan(&e.Path, &kind, &props); err != nil {
			return nil, fmt.Errorf("failed to scan path row: %w", err)
		}
		e.Kind = crawl.Kind(kind)
		if err := json.Unmarshal(props, &e.Props); err != nil {
			return nil, fmt.Errorf("failed to decode props for %q: %w", e.Path, err)
		}
		entries = append(entries, &e)
	}
	if err := rowset.Err(); err != nil {
		return nil, fmt.Errorf("failed to read path rows: %w", err)
	}

	idx, err := crawl.PathIndexFromEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild path index: %w", err)
	}
	snap.Index = idx

	return snap, nil
}
