package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/svn-crawler/internal/core/crawl"
	"github.com/jinford/svn-crawler/internal/infra/ra"
	"github.com/jinford/svn-crawler/internal/platform/config"
	"github.com/jinford/svn-crawler/internal/platform/logger"
	"github.com/jinford/svn-crawler/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config *config.Config
	Logger *slog.Logger
}

// NewAppContext は設定ファイルを読み込んで AppContext を作成する。
// DB接続はスナップショット系コマンドだけが必要とするため遅延させる。
func NewAppContext(envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	return &AppContext{
		Config: cfg,
		Logger: appLogger,
	}, nil
}

// OpenDB はスナップショット保存用のデータベースに接続する
func (ac *AppContext) OpenDB(ctx context.Context) (*db.DB, error) {
	database, err := db.New(ctx, db.ConnectionParams{
		Host:     ac.Config.Database.Host,
		Port:     ac.Config.Database.Port,
		User:     ac.Config.Database.User,
		Password: ac.Config.Database.Password,
		DBName:   ac.Config.Database.DBName,
		SSLMode:  ac.Config.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	return database, nil
}

// CrawlFlags はクロールを実行するコマンドに共通のフラグを返す
func CrawlFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:     "url",
			Usage:    "クロール対象のリポジトリURL (svn://...)",
			Required: true,
		},
		&cli.Int64Flag{
			Name:  "revision",
			Usage: "クロール対象リビジョン（省略時は最新リビジョン）",
			Value: int64(crawl.Head),
		},
		&cli.StringFlag{
			Name:  "username",
			Usage: "認証ユーザ名（省略時は環境変数または認証キャッシュ）",
		},
		&cli.StringFlag{
			Name:  "password",
			Usage: "認証パスワード（省略時は環境変数または認証キャッシュ）",
		},
	}
}

// crawlOptions はフラグと設定からクロールオプションを組み立てる。
// 認証情報はフラグが環境変数より優先される。
func (ac *AppContext) crawlOptions(cmd *cli.Command) crawl.Options {
	opts := crawl.Options{
		URL:      cmd.String("url"),
		Revision: crawl.Revision(cmd.Int64("revision")),
		Username: cmd.String("username"),
		Password: cmd.String("password"),
	}
	if opts.Username == "" {
		opts.Username = ac.Config.SVN.Username
	}
	if opts.Password == "" {
		opts.Password = ac.Config.SVN.Password
	}
	return opts
}

// runCrawl はクロールを実行して結果のインデックスとリビジョンを返す
func (ac *AppContext) runCrawl(ctx context.Context, cmd *cli.Command) (*crawl.PathIndex, crawl.Revision, error) {
	opts := ac.crawlOptions(cmd)

	slog.Info("クロールを開始", "url", opts.URL, "revision", opts.Revision)

	crawler := crawl.NewCrawler(ra.Opener(ac.Config.SVN.ConfigDir))
	idx, rev, err := crawler.Crawl(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("クロールに失敗: %w", err)
	}

	slog.Info("クロールが完了", "url", opts.URL, "revision", rev, "paths", idx.Len())

	return idx, rev, nil
}
