package crawl

import "context"

// Revision はリポジトリのリビジョン番号。
// Head を指定するとクロール時点の最新リビジョンに解決される。
type Revision int64

// Head は「最新リビジョン」を表す番兵値
const Head Revision = -1

// IsHead は最新リビジョン指定かどうかを返す
func (r Revision) IsHead() bool {
	return r < 0
}

// Session は認証済みのリポジトリセッションを抽象化する。
// クロールが必要とする操作は最新リビジョンの解決と、1回限りの
// status レポート交換の2つだけである。
type Session interface {
	// LatestRevision はリポジトリの最新リビジョン番号を取得する
	LatestRevision(ctx context.Context) (Revision, error)

	// RunStatusReport は空ベースライン・深さ無限の status レポートを
	// 発行し、サーバの編集イベントストリームを receiver に流し込む。
	// ストリームが正常終了するまでブロックする。
	RunStatusReport(ctx context.Context, rev Revision, receiver *Receiver) error

	// Close はセッションの下位リソースを解放する
	Close() error
}

// SessionError はセッションの確立または最新リビジョン解決の失敗を表す
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return "session error: " + e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// ProtocolError はレポート交換中のプロトコルレベルの失敗を表す。
// サーバ側の診断メッセージをそのまま保持する。
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
