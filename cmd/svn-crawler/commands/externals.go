package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/svn-crawler/internal/core/crawl"
)

// ExternalsAction はリポジトリ内の svn:externals 定義を一覧表示するコマンドのアクション
func ExternalsAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	idx, rev, err := appCtx.runCrawl(ctx, cmd)
	if err != nil {
		return err
	}

	externals, err := crawl.Externals(idx)
	if err != nil {
		return fmt.Errorf("svn:externals の解析に失敗: %w", err)
	}

	if len(externals) == 0 {
		fmt.Printf("revision %d: no externals\n", rev)
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Dir", "Path", "URL", "Revision")
	for _, ext := range externals {
		revStr := "HEAD"
		if !ext.Revision.IsHead() {
			revStr = fmt.Sprintf("%d", ext.Revision)
		}
		dir := ext.DirPath
		if dir == "" {
			dir = "."
		}
		table.Append(dir, ext.Path, ext.URL, revStr)
	}
	table.Render()

	return nil
}
