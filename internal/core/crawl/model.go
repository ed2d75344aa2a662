package crawl

import (
	"fmt"
	"sort"
)

// Kind はリポジトリパスの種別を表す
type Kind string

const (
	// KindFile はファイルを表す
	KindFile Kind = "file"
	// KindDir はディレクトリを表す
	KindDir Kind = "dir"
)

// PathEntry はクロール結果に含まれる1パス分の情報を表す。
// Path はリポジトリルートからの相対パスで、空文字列はルート自身を意味する。
// Kind は作成時に確定し、以後変更されない。
type PathEntry struct {
	Path  string            `json:"path"`
	Kind  Kind              `json:"kind"`
	Props map[string]string `json:"props"`
}

// IsDir はエントリがディレクトリかどうかを返す
func (e *PathEntry) IsDir() bool {
	return e.Kind == KindDir
}

// PathIndex はクロールで収集したエントリの集合。
// entries はサーバから報告された順序（ルートが先頭）を保持し、
// byPath はパスによる参照用のインデックス。
type PathIndex struct {
	entries []*PathEntry
	byPath  map[string]*PathEntry
}

// NewPathIndex は空の PathIndex を作成する
func NewPathIndex() *PathIndex {
	return &PathIndex{
		byPath: make(map[string]*PathEntry),
	}
}

// PathIndexFromEntries は保存済みのエントリ列からインデックスを復元する。
// 順序は与えられた列をそのまま保持する。
func PathIndexFromEntries(entries []*PathEntry) (*PathIndex, error) {
	idx := NewPathIndex()
	for _, e := range entries {
		if e.Props == nil {
			e.Props = make(map[string]string)
		}
		if !idx.append(e) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePath, e.Path)
		}
	}
	return idx, nil
}

// append はエントリを末尾に追加する。パスが重複する場合は false を返す。
func (idx *PathIndex) append(e *PathEntry) bool {
	if _, exists := idx.byPath[e.Path]; exists {
		return false
	}
	idx.entries = append(idx.entries, e)
	idx.byPath[e.Path] = e
	return true
}

// Len は収録エントリ数を返す
func (idx *PathIndex) Len() int {
	return len(idx.entries)
}

// Lookup はパスに対応するエントリを返す
func (idx *PathIndex) Lookup(path string) (*PathEntry, bool) {
	e, ok := idx.byPath[path]
	return e, ok
}

// Entries はサーバから報告された順序のエントリ列を返す
func (idx *PathIndex) Entries() []*PathEntry {
	return idx.entries
}

// Paths は収録パスの一覧を辞書順で返す
func (idx *PathIndex) Paths() []string {
	paths := make([]string, 0, len(idx.entries))
	for _, e := range idx.entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths
}
