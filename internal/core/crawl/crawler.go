package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// 入力検証エラー。ネットワーク I/O より前に報告される。
var (
	ErrMissingURL        = errors.New("repository URL is required")
	ErrUnsupportedScheme = errors.New("unsupported repository URL scheme")
	ErrInvalidRevision   = errors.New("invalid revision")
)

// Options はクロール1回分の入力を表す
type Options struct {
	// URL はクロール対象リポジトリの URL（必須、svn スキームのみ）
	URL string
	// Revision はクロール対象リビジョン。Head の場合は最新に解決される。
	Revision Revision
	// Username / Password は任意の認証情報。未指定でも匿名アクセスが
	// 許可されたリポジトリならクロールは成功する。
	Username string
	Password string
}

// Validate は入力を検証する
func (o *Options) Validate() error {
	if o.URL == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return fmt.Errorf("invalid repository URL %q: %w", o.URL, err)
	}
	if u.Scheme != "svn" {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if o.Revision < Head {
		return fmt.Errorf("%w: %d", ErrInvalidRevision, o.Revision)
	}
	return nil
}

// Opener は Options から認証済みセッションを確立する
type Opener func(ctx context.Context, opts Options) (Session, error)

// Crawler はリポジトリツリーの一括クロールを実行する。
// 1回の status レポート交換でツリー全体の記述を受信するため、
// パスごとにリクエストを発行する方式と異なりネットワーク往復は1回で済む。
type Crawler struct {
	open       Opener
	maxRetries uint64
}

// NewCrawler は新しい Crawler を作成する
func NewCrawler(open Opener) *Crawler {
	return &Crawler{
		open:       open,
		maxRetries: 3,
	}
}

// Crawl はリポジトリを指定リビジョンでクロールし、全パスのインデックスと
// 実際にクロールしたリビジョン番号を返す。
// 失敗した場合は部分的なインデックスを返さない。
func (c *Crawler) Crawl(ctx context.Context, opts Options) (*PathIndex, Revision, error) {
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}

	session, err := c.openWithRetry(ctx, opts)
	if err != nil {
		return nil, 0, &SessionError{Err: err}
	}
	defer session.Close()

	rev := opts.Revision
	if rev.IsHead() {
		rev, err = session.LatestRevision(ctx)
		if err != nil {
			return nil, 0, &SessionError{Err: err}
		}
		slog.Debug("最新リビジョンを解決", "url", opts.URL, "revision", rev)
	}

	receiver := NewReceiver()
	if err := session.RunStatusReport(ctx, rev, receiver); err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return nil, 0, err
		}
		return nil, 0, &ProtocolError{Err: err}
	}

	slog.Debug("クロール完了", "url", opts.URL, "revision", rev, "paths", receiver.Index().Len())

	return receiver.Index(), rev, nil
}

// openWithRetry はセッション確立を指数バックオフ付きでリトライする。
// リトライするのはセッション確立のみで、レポート交換自体は
// 1回限りの往復として成功するか全体が失敗するかのどちらかになる。
func (c *Crawler) openWithRetry(ctx context.Context, opts Options) (Session, error) {
	var session Session

	operation := func() error {
		s, err := c.open(ctx, opts)
		if err != nil {
			return err
		}
		session = s
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		slog.Warn("セッション確立に失敗、リトライします", "url", opts.URL, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}

	return session, nil
}
