package crawl

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFilter は gitignore 形式のパターンによる除外判定を提供する。
// クロール自体は常にツリー全体を対象とし、除外は返却前の後処理として
// インデックスへ適用される。
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter はパターン列から新しい IgnoreFilter を作成する
func NewIgnoreFilter(patterns []string) *IgnoreFilter {
	var matcher *gitignore.GitIgnore
	if len(patterns) > 0 {
		matcher = gitignore.CompileIgnoreLines(patterns...)
	}
	return &IgnoreFilter{patterns: matcher}
}

// ShouldIgnore はパスが除外対象かどうかを判定する。
// ルート（空文字列）は除外しない。
func (f *IgnoreFilter) ShouldIgnore(path string) bool {
	if f.patterns == nil || path == "" {
		return false
	}
	return f.patterns.MatchesPath(path)
}

// Apply はインデックスから除外対象パスを取り除いた新しいインデックスを返す。
// パターンが空の場合は元のインデックスをそのまま返す。
func (f *IgnoreFilter) Apply(idx *PathIndex) *PathIndex {
	if f.patterns == nil {
		return idx
	}

	filtered := NewPathIndex()
	for _, e := range idx.Entries() {
		if f.ShouldIgnore(e.Path) {
			continue
		}
		filtered.append(e)
	}
	return filtered
}
