package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/svn-crawler/internal/core/crawl"
	"github.com/jinford/svn-crawler/internal/infra/postgres"
)

// SnapshotSaveAction はクロール結果をスナップショットとして保存するコマンドのアクション
func SnapshotSaveAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	idx, rev, err := appCtx.runCrawl(ctx, cmd)
	if err != nil {
		return err
	}

	database, err := appCtx.OpenDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	store := postgres.NewSnapshotStore(database.Pool)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("スキーマの初期化に失敗: %w", err)
	}

	snap := crawl.NewSnapshot(cmd.String("url"), rev, idx)
	if err := store.Save(ctx, snap); err != nil {
		if errors.Is(err, postgres.ErrSnapshotExists) {
			slog.Warn("同一リビジョンのスナップショットが既に存在します",
				"url", snap.RepoURL, "revision", snap.Revision)
			return nil
		}
		return fmt.Errorf("スナップショットの保存に失敗: %w", err)
	}

	slog.Info("スナップショットを保存しました",
		"id", snap.ID, "url", snap.RepoURL, "revision", snap.Revision, "paths", idx.Len())

	fmt.Println(snap.ID)
	return nil
}

// SnapshotListAction は保存済みスナップショットの一覧を表示するコマンドのアクション
func SnapshotListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	database, err := appCtx.OpenDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	store := postgres.NewSnapshotStore(database.Pool)
	metas, err := store.List(ctx, cmd.String("url"))
	if err != nil {
		return fmt.Errorf("スナップショット一覧の取得に失敗: %w", err)
	}

	if len(metas) == 0 {
		fmt.Println("スナップショットはありません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Repository", "Revision", "Paths", "Crawled At")
	for _, m := range metas {
		table.Append(
			m.ID.String(),
			m.RepoURL,
			fmt.Sprintf("%d", m.Revision),
			fmt.Sprintf("%d", m.PathCount),
			m.CrawledAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()

	return nil
}

// SnapshotShowAction は保存済みスナップショットの内容を表示するコマンドのアクション
func SnapshotShowAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid snapshot id: %w", err)
	}

	database, err := appCtx.OpenDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	store := postgres.NewSnapshotStore(database.Pool)
	snap, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrSnapshotNotFound) {
			return fmt.Errorf("snapshot %s not found", id)
		}
		return fmt.Errorf("スナップショットの取得に失敗: %w", err)
	}

	return renderIndex(snap.Index, snap.Revision, cmd.String("format"))
}
