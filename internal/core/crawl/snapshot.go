package crawl

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot は1回のクロール結果を保存可能な形にまとめたもの。
// 1つのリビジョンにおけるツリーの不変のスナップショットであり、
// 保存後に変更されることはない。
type Snapshot struct {
	ID        uuid.UUID
	RepoURL   string
	Revision  Revision
	CrawledAt time.Time
	Index     *PathIndex
}

// NewSnapshot はクロール結果から新しい Snapshot を作成する
func NewSnapshot(repoURL string, rev Revision, idx *PathIndex) *Snapshot {
	return &Snapshot{
		ID:        uuid.New(),
		RepoURL:   repoURL,
		Revision:  rev,
		CrawledAt: time.Now().UTC(),
		Index:     idx,
	}
}

// SnapshotMeta はスナップショットの一覧表示用メタデータ
type SnapshotMeta struct {
	ID        uuid.UUID
	RepoURL   string
	Revision  Revision
	CrawledAt time.Time
	PathCount int
}
