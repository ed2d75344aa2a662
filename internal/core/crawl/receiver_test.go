package crawl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string {
	return &s
}

// TestReceiver_Scenario はルート + docs ディレクトリ + ファイルの
// 典型的なイベント列から正しいインデックスが構築されることをテストします
func TestReceiver_Scenario(t *testing.T) {
	r := NewReceiver()

	require.NoError(t, r.OpenRoot())
	require.NoError(t, r.AddDir("docs"))
	require.NoError(t, r.ChangeProp("owner", strptr("alice")))
	require.NoError(t, r.AddFile("docs/readme.txt"))
	require.NoError(t, r.ChangeProp("mime", strptr("text/plain")))

	idx := r.Index()
	require.Equal(t, 3, idx.Len())

	root, ok := idx.Lookup("")
	require.True(t, ok)
	assert.Equal(t, KindDir, root.Kind)
	assert.Empty(t, root.Props)
	assert.Same(t, root, idx.Entries()[0], "ルートは常に先頭エントリ")

	docs, ok := idx.Lookup("docs")
	require.True(t, ok)
	assert.Equal(t, KindDir, docs.Kind)
	assert.Equal(t, map[string]string{"owner": "alice"}, docs.Props)

	readme, ok := idx.Lookup("docs/readme.txt")
	require.True(t, ok)
	assert.Equal(t, KindFile, readme.Kind)
	assert.Equal(t, map[string]string{"mime": "text/plain"}, readme.Props)
}

// TestReceiver_PropsTargetFocus はプロパティ変更が常に直近に開かれた
// エントリへ適用されることをテストします
func TestReceiver_PropsTargetFocus(t *testing.T) {
	r := NewReceiver()

	require.NoError(t, r.OpenRoot())
	require.NoError(t, r.ChangeProp("svn:externals", strptr("^/vendor vendor")))
	require.NoError(t, r.AddDir("trunk"))
	require.NoError(t, r.ChangeProp("owner", strptr("bob")))

	root, _ := r.Index().Lookup("")
	trunk, _ := r.Index().Lookup("trunk")
	assert.Equal(t, map[string]string{"svn:externals": "^/vendor vendor"}, root.Props)
	assert.Equal(t, map[string]string{"owner": "bob"}, trunk.Props)
}

// TestReceiver_NullPropIgnored は値のないプロパティ変更（削除通知）が
// 無視されることをテストします
func TestReceiver_NullPropIgnored(t *testing.T) {
	r := NewReceiver()

	require.NoError(t, r.OpenRoot())
	require.NoError(t, r.AddFile("a.txt"))
	require.NoError(t, r.ChangeProp("svn:mime-type", nil))

	e, _ := r.Index().Lookup("a.txt")
	assert.Empty(t, e.Props)
}

// TestReceiver_OrderingViolations はプロトコルの順序保証が破られた場合に
// エラーになることをテストします
func TestReceiver_OrderingViolations(t *testing.T) {
	t.Run("ルート開始前のディレクトリ追加", func(t *testing.T) {
		r := NewReceiver()
		err := r.AddDir("docs")
		assert.ErrorIs(t, err, ErrRootNotOpen)
	})

	t.Run("ルート開始前のファイル追加", func(t *testing.T) {
		r := NewReceiver()
		err := r.AddFile("a.txt")
		assert.ErrorIs(t, err, ErrRootNotOpen)
	})

	t.Run("ルート開始前のプロパティ変更", func(t *testing.T) {
		r := NewReceiver()
		err := r.ChangeProp("owner", strptr("alice"))
		assert.ErrorIs(t, err, ErrNoFocus)
	})

	t.Run("ルートの二重開始", func(t *testing.T) {
		r := NewReceiver()
		require.NoError(t, r.OpenRoot())
		err := r.OpenRoot()
		assert.ErrorIs(t, err, ErrRootAlreadyOpen)
	})

	t.Run("パスの重複", func(t *testing.T) {
		r := NewReceiver()
		require.NoError(t, r.OpenRoot())
		require.NoError(t, r.AddFile("a.txt"))
		err := r.AddFile("a.txt")
		assert.ErrorIs(t, err, ErrDuplicatePath)
	})
}

// TestReceiver_PathNormalization は先頭スラッシュ付きのパス表記が
// リポジトリ相対に正規化されることをテストします
func TestReceiver_PathNormalization(t *testing.T) {
	r := NewReceiver()

	require.NoError(t, r.OpenRoot())
	require.NoError(t, r.AddDir("/trunk"))

	_, ok := r.Index().Lookup("trunk")
	assert.True(t, ok)
}

// TestPathIndex_Paths はパス一覧が辞書順で返されることをテストします
func TestPathIndex_Paths(t *testing.T) {
	r := NewReceiver()

	require.NoError(t, r.OpenRoot())
	require.NoError(t, r.AddDir("b"))
	require.NoError(t, r.AddFile("a.txt"))

	assert.Equal(t, []string{"", "a.txt", "b"}, r.Index().Paths())
}
