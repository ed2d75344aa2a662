package crawl

import (
	"errors"
	"fmt"
	"strings"
)

// レポート交換のイベント順序が崩れていた場合に返されるエラー。
// プロトコル上はルートが最初に一度だけ開かれ、プロパティ変更は直前に
// open/add されたノードに対してのみ届くことが保証されているが、
// その保証が破られた場合は黙って結果を壊すのではなくエラーにする。
var (
	ErrRootAlreadyOpen = errors.New("root already opened")
	ErrRootNotOpen     = errors.New("root not opened yet")
	ErrDuplicatePath   = errors.New("duplicate path in report")
	ErrNoFocus         = errors.New("property change without a focused entry")
)

// Receiver はレポート交換でサーバが送出するツリー編集イベントを消費し、
// PathIndex を構築するレシーバ。
//
// 状態は構築途中のインデックスと「現在フォーカス中のエントリ」の2つのみ。
// フォーカスは open-root / add-dir / add-file でのみ移動し、close 系の
// イベントでは移動しない。プロパティ変更は常にフォーカス中のエントリに
// 適用される。
type Receiver struct {
	index *PathIndex
	focus *PathEntry
}

// NewReceiver は1回のクロール専用の Receiver を作成する
func NewReceiver() *Receiver {
	return &Receiver{
		index: NewPathIndex(),
	}
}

// OpenRoot はストリーム先頭のルートディレクトリ開始イベントを処理する
func (r *Receiver) OpenRoot() error {
	if r.index.Len() > 0 {
		return ErrRootAlreadyOpen
	}

	root := &PathEntry{
		Path:  "",
		Kind:  KindDir,
		Props: make(map[string]string),
	}
	r.index.append(root)
	r.focus = root

	return nil
}

// AddDir はディレクトリ追加イベントを処理する
func (r *Receiver) AddDir(path string) error {
	return r.add(path, KindDir)
}

// AddFile はファイル追加イベントを処理する
func (r *Receiver) AddFile(path string) error {
	return r.add(path, KindFile)
}

func (r *Receiver) add(path string, kind Kind) error {
	if r.index.Len() == 0 {
		return fmt.Errorf("%w: add %q", ErrRootNotOpen, path)
	}

	entry := &PathEntry{
		Path:  normalizePath(path),
		Kind:  kind,
		Props: make(map[string]string),
	}
	if !r.index.append(entry) {
		return fmt.Errorf("%w: %q", ErrDuplicatePath, entry.Path)
	}
	r.focus = entry

	return nil
}

// ChangeProp はフォーカス中のエントリへのプロパティ変更イベントを処理する。
// value が nil の場合はプロパティ削除の通知であり、空ベースラインからの
// 一覧取得では意味を持たないため無視する。
func (r *Receiver) ChangeProp(name string, value *string) error {
	if r.focus == nil {
		return fmt.Errorf("%w: property %q", ErrNoFocus, name)
	}
	if value == nil {
		return nil
	}

	r.focus.Props[name] = *value

	return nil
}

// Focus は現在フォーカス中のエントリを返す。ルート開始前は nil。
func (r *Receiver) Focus() *PathEntry {
	return r.focus
}

// Index は構築したインデックスを返す。
// レポート交換が正常終了するまでは中間状態であり、呼び出し側
// （セッションアダプタ）がエラー時に破棄する責任を持つ。
func (r *Receiver) Index() *PathIndex {
	return r.index
}

// normalizePath はサーバから届いたパス表記をリポジトリ相対に揃える
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}
