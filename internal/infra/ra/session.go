package ra

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/jinford/svn-crawler/internal/core/crawl"
)

const (
	defaultPort = "3690"
	userAgent   = "svn-crawler"

	// クライアントが対応するプロトコルバージョン
	protocolVersion = 2

	depthInfinity = "infinity"
)

// Session は svn:// リポジトリへの認証済みセッション。
// crawl.Session を実装する。
type Session struct {
	conn      *conn
	url       string
	username  string
	password  string
	configDir string
}

// コンパイル時の型チェック
var _ crawl.Session = (*Session)(nil)

// Open は crawl.Opener として使えるセッション確立関数。
// 接続、プロトコルハンドシェイク、認証までを済ませたセッションを返す。
func Open(ctx context.Context, opts crawl.Options) (crawl.Session, error) {
	return open(ctx, opts, DefaultConfigDir())
}

// Opener は認証キャッシュの参照先ディレクトリを差し替えたセッション確立
// 関数を返す。configDir が空の場合は既定の場所を使う。
func Opener(configDir string) crawl.Opener {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return func(ctx context.Context, opts crawl.Options) (crawl.Session, error) {
		return open(ctx, opts, configDir)
	}
}

func open(ctx context.Context, opts crawl.Options, configDir string) (*Session, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL %q: %w", opts.URL, err)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.URL, err)
	}

	s := &Session{
		conn:      newConn(raw),
		url:       opts.URL,
		username:  opts.Username,
		password:  opts.Password,
		configDir: configDir,
	}
	applyDeadline(ctx, raw)

	if err := s.handshake(); err != nil {
		raw.Close()
		return nil, err
	}

	return s, nil
}

// applyDeadline は呼び出し側の期限を接続にそのまま反映する。
// タイムアウトの方針はこの層では決めない。
func applyDeadline(ctx context.Context, raw net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
}

// handshake はグリーティング、クライアント応答、認証、リポジトリ情報
// 受信までの接続確立シーケンスを実行する
func (s *Session) handshake() error {
	// グリーティング: ( success ( minver maxver mechs caps ) )
	greeting, err := s.conn.readResponse()
	if err != nil {
		return fmt.Errorf("failed to read server greeting: %w", err)
	}
	if len(greeting) < 2 || greeting[0].Type != TypeNumber || greeting[1].Type != TypeNumber {
		return fmt.Errorf("malformed server greeting")
	}
	if greeting[0].Number > protocolVersion || greeting[1].Number < protocolVersion {
		return fmt.Errorf("server protocol versions %d-%d not supported",
			greeting[0].Number, greeting[1].Number)
	}

	// クライアント応答: ( version caps url ua ( ) )
	err = s.conn.writeList(
		Number(protocolVersion),
		List(Word("edit-pipeline"), Word("svndiff1"), Word("absent-entries"), Word("depth")),
		String(s.url),
		String(userAgent),
		List(),
	)
	if err != nil {
		return fmt.Errorf("failed to send client response: %w", err)
	}

	// 認証要求: ( success ( ( mech ... ) realm ) )
	authReq, err := s.conn.readResponse()
	if err != nil {
		return fmt.Errorf("failed to read auth request: %w", err)
	}
	mechs, realm, err := parseAuthRequest(authReq)
	if err != nil {
		return err
	}
	if len(mechs) > 0 {
		if err := s.authenticate(mechs, realm); err != nil {
			return err
		}
	}

	// リポジトリ情報: ( success ( uuid repos-url caps ) )
	if _, err := s.conn.readResponse(); err != nil {
		return fmt.Errorf("failed to read repository info: %w", err)
	}

	return nil
}

func parseAuthRequest(params []Item) (mechs []string, realm string, err error) {
	if len(params) < 1 || params[0].Type != TypeList {
		return nil, "", fmt.Errorf("malformed auth request")
	}
	for _, m := range params[0].List {
		if m.Type == TypeWord {
			mechs = append(mechs, m.Word)
		}
	}
	if len(params) >= 2 && params[1].Type == TypeString {
		realm = params[1].Text()
	}
	return mechs, realm, nil
}

// readCommandResponse はコマンド応答を読み込む。コマンド応答の前には
// 認証要求が挟まる（機構リストが空なら追加認証なし）。
func (s *Session) readCommandResponse() ([]Item, error) {
	authReq, err := s.conn.readResponse()
	if err != nil {
		return nil, err
	}
	mechs, realm, err := parseAuthRequest(authReq)
	if err != nil {
		return nil, err
	}
	if len(mechs) > 0 {
		if err := s.authenticate(mechs, realm); err != nil {
			return nil, err
		}
	}
	return s.conn.readResponse()
}

// LatestRevision はリポジトリの最新リビジョン番号を取得する
func (s *Session) LatestRevision(ctx context.Context) (crawl.Revision, error) {
	applyDeadline(ctx, s.conn.raw)

	if err := s.conn.writeList(Word("get-latest-rev"), List()); err != nil {
		return 0, fmt.Errorf("failed to send get-latest-rev: %w", err)
	}

	params, err := s.readCommandResponse()
	if err != nil {
		return 0, fmt.Errorf("failed to get latest revision: %w", err)
	}
	if len(params) < 1 || params[0].Type != TypeNumber {
		return 0, fmt.Errorf("malformed get-latest-rev response")
	}

	return crawl.Revision(params[0].Number), nil
}

// RunStatusReport は空ベースライン・深さ無限の status レポートを発行し、
// サーバが送出する編集イベントストリームを receiver に流し込む。
//
// ベースラインを空と申告することで、サーバの差分計算アルゴリズムは
// 「すべてのパスを新規追加として記述する」動作に縮退し、1回の応答で
// ツリー全体の記述が得られる。
func (s *Session) RunStatusReport(ctx context.Context, rev crawl.Revision, receiver *crawl.Receiver) error {
	applyDeadline(ctx, s.conn.raw)

	// status コマンド: ( status ( target recurse ( rev ) depth ) )
	err := s.conn.writeList(
		Word("status"),
		List(String(""), Bool(true), List(Number(uint64(rev))), Word(depthInfinity)),
	)
	if err != nil {
		return fmt.Errorf("failed to send status command: %w", err)
	}

	// レポート: ルートを空ベースラインとして申告して終了
	err = s.conn.writeList(
		Word("set-path"),
		List(String(""), Number(uint64(rev)), Bool(true), List(), Word(depthInfinity)),
	)
	if err != nil {
		return fmt.Errorf("failed to send set-path: %w", err)
	}
	if err := s.conn.writeList(Word("finish-report"), List()); err != nil {
		return fmt.Errorf("failed to send finish-report: %w", err)
	}

	// コマンド本体の応答に先立つ認証要求を処理する
	authReq, err := s.conn.readResponse()
	if err != nil {
		return fmt.Errorf("failed to read report response: %w", err)
	}
	mechs, realm, err := parseAuthRequest(authReq)
	if err != nil {
		return err
	}
	if len(mechs) > 0 {
		if err := s.authenticate(mechs, realm); err != nil {
			return err
		}
	}

	if err := s.driveEditor(receiver); err != nil {
		return err
	}

	// 編集終了後にコマンド自体の完了応答が届く
	if _, err := s.conn.readResponse(); err != nil {
		return fmt.Errorf("report did not complete: %w", err)
	}

	return nil
}

// driveEditor はサーバからの編集コマンド列を消費し receiver に転送する。
// close-edit で正常終了する。トークンの対応関係を追跡し、プロパティ変更が
// フォーカス外のノードを指した場合はプロトコル違反として中断する。
func (s *Session) driveEditor(receiver *crawl.Receiver) error {
	// トークン -> エントリパス。close されたトークンは無効化される。
	tokens := make(map[string]*crawl.PathEntry)

	for {
		it, err := s.conn.readItem()
		if err != nil {
			return fmt.Errorf("edit stream ended unexpectedly: %w", err)
		}
		if it.Type != TypeList || len(it.List) < 1 || it.List[0].Type != TypeWord {
			return fmt.Errorf("malformed edit command")
		}
		cmd := it.List[0].Word
		var params []Item
		if len(it.List) >= 2 && it.List[1].Type == TypeList {
			params = it.List[1].List
		}

		switch cmd {
		case "target-rev":
			// 情報のみ

		case "open-root":
			// params: ( ( rev? ) token )
			if len(params) < 2 || params[1].Type != TypeString {
				return fmt.Errorf("malformed open-root")
			}
			if err := receiver.OpenRoot(); err != nil {
				return err
			}
			tokens[params[1].Text()] = receiver.Focus()

		case "add-dir", "add-file":
			// params: ( path parent-token child-token ( copy... ) )
			if len(params) < 3 || params[0].Type != TypeString || params[2].Type != TypeString {
				return fmt.Errorf("malformed %s", cmd)
			}
			path := params[0].Text()
			if cmd == "add-dir" {
				err = receiver.AddDir(path)
			} else {
				err = receiver.AddFile(path)
			}
			if err != nil {
				return err
			}
			tokens[params[2].Text()] = receiver.Focus()

		case "change-dir-prop", "change-file-prop":
			// params: ( token name ( value? ) )
			if len(params) < 2 || params[0].Type != TypeString || params[1].Type != TypeString {
				return fmt.Errorf("malformed %s", cmd)
			}
			entry, ok := tokens[params[0].Text()]
			if !ok || entry != receiver.Focus() {
				// プロパティはノードを開いた直後・子孫へ降りる前に報告される
				// というプロトコル保証が破られている
				return fmt.Errorf("%s targets a node that is no longer current", cmd)
			}
			var value *string
			if len(params) >= 3 && params[2].Type == TypeList && len(params[2].List) >= 1 &&
				params[2].List[0].Type == TypeString {
				v := params[2].List[0].Text()
				value = &v
			}
			if err := receiver.ChangeProp(params[1].Text(), value); err != nil {
				return err
			}

		case "close-dir", "close-file":
			// params: ( token ... )
			if len(params) < 1 || params[0].Type != TypeString {
				return fmt.Errorf("malformed %s", cmd)
			}
			token := params[0].Text()
			if _, ok := tokens[token]; !ok {
				return fmt.Errorf("%s for unknown token", cmd)
			}
			// フォーカスは移動しないが、以後このトークン宛の
			// プロパティ変更は受け付けない
			delete(tokens, token)

		case "open-dir", "open-file":
			// 空ベースラインのレポートでは既存ノードが開かれることはない
			return fmt.Errorf("unexpected %s in add-only report", cmd)

		case "apply-textdelta", "textdelta-chunk", "textdelta-end", "absent-dir", "absent-file":
			// パス一覧には関与しない

		case "close-edit":
			// 編集終了を了承する
			if err := s.conn.writeList(Word("success"), List()); err != nil {
				return fmt.Errorf("failed to ack close-edit: %w", err)
			}
			return nil

		case "abort-edit":
			return fmt.Errorf("server aborted the edit")

		case "failure":
			return serverError(it)

		default:
			return fmt.Errorf("unknown edit command %q", cmd)
		}
	}
}

// Close はセッションの下位接続を閉じる
func (s *Session) Close() error {
	return s.conn.close()
}
