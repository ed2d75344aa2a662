package ra

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/svn-crawler/internal/core/crawl"
)

// scriptedServer はテスト用の svnserve もどきです。
// アイテムコーデックを共有してスクリプト通りの交換を行います。
type scriptedServer struct {
	t        *testing.T
	listener net.Listener
	done     chan struct{}
}

type serverConn struct {
	t *testing.T
	r *bufio.Reader
	w *bufio.Writer
}

func (c *serverConn) send(items ...Item) {
	c.t.Helper()
	require.NoError(c.t, WriteItem(c.w, List(items...)))
	require.NoError(c.t, c.w.Flush())
}

func (c *serverConn) recv() Item {
	c.t.Helper()
	it, err := ReadItem(c.r)
	require.NoError(c.t, err)
	return it
}

// startServer はスクリプトを1接続分だけ実行するサーバを起動します
func startServer(t *testing.T, script func(c *serverConn)) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &scriptedServer{t: t, listener: listener, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(&serverConn{t: t, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)})
	}()

	t.Cleanup(func() {
		listener.Close()
		<-s.done
	})

	return "svn://" + listener.Addr().String() + "/repo"
}

// handshakeAnonymous はグリーティングから匿名認証までを処理します
func handshakeAnonymous(c *serverConn) {
	// グリーティング
	c.send(Word("success"), List(Number(1), Number(2), List(), List(Word("edit-pipeline"))))

	// クライアント応答（バージョン2であること）
	resp := c.recv()
	require.Equal(c.t, TypeList, resp.Type)
	require.NotEmpty(c.t, resp.List)
	assert.Equal(c.t, Number(2), resp.List[0])

	// 認証要求 → ANONYMOUS 応答 → 認証成功
	c.send(Word("success"), List(List(Word("ANONYMOUS")), String("<svn://example> realm")))
	mech := c.recv()
	require.True(c.t, mech.List[0].IsWord("ANONYMOUS"))
	c.send(Word("success"), List())

	// リポジトリ情報
	c.send(Word("success"), List(String("13f79535-47bb-0310-9956-ffa450edef68"), String("svn://example/repo"), List()))
}

// serveStatusReport は status コマンドとレポートを受け取り、
// 編集イベント列を流して close-edit で終了します
func serveStatusReport(c *serverConn, wantRev uint64, drive func(c *serverConn)) {
	status := c.recv()
	require.True(c.t, status.List[0].IsWord("status"))
	params := status.List[1].List
	require.Equal(c.t, Number(wantRev), params[2].List[0], "対象リビジョン")
	require.True(c.t, params[1].IsWord("true"), "再帰フラグ")
	require.True(c.t, params[3].IsWord("infinity"), "深さは無限")

	setPath := c.recv()
	require.True(c.t, setPath.List[0].IsWord("set-path"))
	require.True(c.t, setPath.List[1].List[2].IsWord("true"), "start-empty")

	finish := c.recv()
	require.True(c.t, finish.List[0].IsWord("finish-report"))

	// コマンド応答前の認証要求（追加認証なし）
	c.send(Word("success"), List(List(), String("")))

	drive(c)
}

// fullEditDrive は小さなツリー全体を記述する編集イベント列です
func fullEditDrive(c *serverConn) {
	c.send(Word("target-rev"), List(Number(5)))
	c.send(Word("open-root"), List(List(), String("d0")))
	c.send(Word("add-dir"), List(String("docs"), String("d0"), String("d1"), List()))
	c.send(Word("change-dir-prop"), List(String("d1"), String("owner"), List(String("alice"))))
	c.send(Word("add-file"), List(String("docs/readme.txt"), String("d1"), String("f1"), List()))
	c.send(Word("change-file-prop"), List(String("f1"), String("mime"), List(String("text/plain"))))
	c.send(Word("close-file"), List(String("f1"), List()))
	c.send(Word("close-dir"), List(String("d1")))
	c.send(Word("close-dir"), List(String("d0")))
	c.send(Word("close-edit"), List())

	// クライアントの close-edit 了承
	ack := c.recv()
	require.True(c.t, ack.List[0].IsWord("success"))

	// コマンド完了応答
	c.send(Word("success"), List())
}

// TestSession_Crawl はハンドシェイクからレポート交換までの一連の流れを
// テストします
func TestSession_Crawl(t *testing.T) {
	url := startServer(t, func(c *serverConn) {
		handshakeAnonymous(c)

		// get-latest-rev
		cmd := c.recv()
		require.True(t, cmd.List[0].IsWord("get-latest-rev"))
		c.send(Word("success"), List(List(), String("")))
		c.send(Word("success"), List(Number(5)))

		serveStatusReport(c, 5, fullEditDrive)
	})

	session, err := open(context.Background(), crawl.Options{URL: url}, "")
	require.NoError(t, err)
	defer session.Close()

	rev, err := session.LatestRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crawl.Revision(5), rev)

	receiver := crawl.NewReceiver()
	require.NoError(t, session.RunStatusReport(context.Background(), rev, receiver))

	idx := receiver.Index()
	require.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"", "docs", "docs/readme.txt"}, idx.Paths())

	docs, _ := idx.Lookup("docs")
	assert.Equal(t, crawl.KindDir, docs.Kind)
	assert.Equal(t, map[string]string{"owner": "alice"}, docs.Props)

	readme, _ := idx.Lookup("docs/readme.txt")
	assert.Equal(t, crawl.KindFile, readme.Kind)
	assert.Equal(t, map[string]string{"mime": "text/plain"}, readme.Props)
}

// TestSession_CramMD5 はパスワード指定時の CRAM-MD5 認証をテストします
func TestSession_CramMD5(t *testing.T) {
	const challenge = "<1896.697170952@svn.example.org>"

	url := startServer(t, func(c *serverConn) {
		c.send(Word("success"), List(Number(1), Number(2), List(), List(Word("edit-pipeline"))))
		c.recv()

		c.send(Word("success"), List(List(Word("CRAM-MD5")), String("<svn://example> realm")))
		mech := c.recv()
		require.True(t, mech.List[0].IsWord("CRAM-MD5"))

		// チャレンジを送り、応答の形式と HMAC-MD5 ダイジェストを検証する
		c.send(Word("step"), List(String(challenge)))
		resp, err := ReadItem(c.r)
		require.NoError(t, err)
		require.Equal(t, TypeString, resp.Type)

		parts := strings.SplitN(resp.Text(), " ", 2)
		require.Len(t, parts, 2)
		assert.Equal(t, "alice", parts[0])

		mac := hmac.New(md5.New, []byte("secret"))
		mac.Write([]byte(challenge))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), parts[1])

		c.send(Word("success"), List())
		c.send(Word("success"), List(String("uuid"), String("svn://example/repo"), List()))
	})

	session, err := open(context.Background(), crawl.Options{
		URL: url, Username: "alice", Password: "secret",
	}, "")
	require.NoError(t, err)
	session.Close()
}

// TestSession_ServerFailure はサーバの failure 応答の診断メッセージが
// そのまま呼び出し側へ届くことをテストします
func TestSession_ServerFailure(t *testing.T) {
	const diag = "No repository found in 'svn://svn.example.org/missing'"

	url := startServer(t, func(c *serverConn) {
		handshakeAnonymous(c)

		c.recv() // get-latest-rev
		c.send(Word("success"), List(List(), String("")))
		c.send(Word("failure"), List(List(Number(210005), String(diag), String(""), Number(0))))
	})

	session, err := open(context.Background(), crawl.Options{URL: url}, "")
	require.NoError(t, err)
	defer session.Close()

	_, err = session.LatestRevision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), diag)
}

// TestSession_TruncatedEditStream は編集ストリームが途中で切断された場合に
// レポートがエラーで終わることをテストします
func TestSession_TruncatedEditStream(t *testing.T) {
	url := startServer(t, func(c *serverConn) {
		handshakeAnonymous(c)

		serveStatusReport(c, 3, func(c *serverConn) {
			c.send(Word("open-root"), List(List(), String("d0")))
			c.send(Word("add-dir"), List(String("docs"), String("d0"), String("d1"), List()))
			// close-edit を送らずに切断する
		})
	})

	session, err := open(context.Background(), crawl.Options{URL: url}, "")
	require.NoError(t, err)
	defer session.Close()

	receiver := crawl.NewReceiver()
	err = session.RunStatusReport(context.Background(), 3, receiver)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpectedly")
}

// TestSession_StalePropTarget はフォーカス外のノードへのプロパティ変更が
// プロトコル違反として拒否されることをテストします
func TestSession_StalePropTarget(t *testing.T) {
	url := startServer(t, func(c *serverConn) {
		handshakeAnonymous(c)

		serveStatusReport(c, 3, func(c *serverConn) {
			c.send(Word("open-root"), List(List(), String("d0")))
			c.send(Word("add-dir"), List(String("docs"), String("d0"), String("d1"), List()))
			// d1 がフォーカスのまま d0 へのプロパティ変更を送る
			c.send(Word("change-dir-prop"), List(String("d0"), String("owner"), List(String("alice"))))
		})
	})

	session, err := open(context.Background(), crawl.Options{URL: url}, "")
	require.NoError(t, err)
	defer session.Close()

	err = session.RunStatusReport(context.Background(), 3, crawl.NewReceiver())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer current")
}

// TestSession_PropDeletionIgnored は値なしのプロパティ変更が結果に
// 影響しないことをテストします
func TestSession_PropDeletionIgnored(t *testing.T) {
	url := startServer(t, func(c *serverConn) {
		handshakeAnonymous(c)

		serveStatusReport(c, 3, func(c *serverConn) {
			c.send(Word("open-root"), List(List(), String("d0")))
			c.send(Word("add-file"), List(String("a.txt"), String("d0"), String("f1"), List()))
			c.send(Word("change-file-prop"), List(String("f1"), String("svn:mime-type"), List()))
			c.send(Word("close-file"), List(String("f1"), List()))
			c.send(Word("close-dir"), List(String("d0")))
			c.send(Word("close-edit"), List())
			c.recv()
			c.send(Word("success"), List())
		})
	})

	session, err := open(context.Background(), crawl.Options{URL: url}, "")
	require.NoError(t, err)
	defer session.Close()

	receiver := crawl.NewReceiver()
	require.NoError(t, session.RunStatusReport(context.Background(), 3, receiver))

	e, ok := receiver.Index().Lookup("a.txt")
	require.True(t, ok)
	assert.Empty(t, e.Props)
}
