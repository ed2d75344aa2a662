package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/svn-crawler/cmd/svn-crawler/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "svn-crawler",
		Usage: "リモートSubversionリポジトリのツリーを1リクエストで一括クロールするツール",
		Commands: []*cli.Command{
			{
				Name:  "crawl",
				Usage: "リポジトリをクロールして全パスとプロパティを表示",
				Flags: append(commands.CrawlFlags(),
					&cli.StringFlag{
						Name:  "format",
						Usage: "出力フォーマット (json/text)",
						Value: "json",
					},
					&cli.StringSliceFlag{
						Name:  "ignore",
						Usage: "出力から除外する gitignore 形式のパターン",
					},
				),
				Action: commands.CrawlAction,
			},
			{
				Name:  "snapshot",
				Usage: "クロール結果のスナップショット管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "save",
						Usage:  "リポジトリをクロールしてスナップショットを保存",
						Flags:  commands.CrawlFlags(),
						Action: commands.SnapshotSaveAction,
					},
					{
						Name:  "list",
						Usage: "保存済みスナップショットの一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "url",
								Usage: "リポジトリURL（絞り込み）",
							},
						},
						Action: commands.SnapshotListAction,
					},
					{
						Name:  "show",
						Usage: "保存済みスナップショットの内容を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "スナップショットID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "format",
								Usage: "出力フォーマット (json/text)",
								Value: "json",
							},
						},
						Action: commands.SnapshotShowAction,
					},
				},
			},
			{
				Name:   "externals",
				Usage:  "リポジトリ内の svn:externals 定義を一覧表示",
				Flags:  commands.CrawlFlags(),
				Action: commands.ExternalsAction,
			},
			{
				Name:   "stats",
				Usage:  "リポジトリの言語別ファイル数を集計して表示",
				Flags:  commands.CrawlFlags(),
				Action: commands.StatsAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}
