package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/svn-crawler/internal/core/crawl"
)

// StatsAction は言語別ファイル数などの集計を表示するコマンドのアクション
func StatsAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	idx, rev, err := appCtx.runCrawl(ctx, cmd)
	if err != nil {
		return err
	}

	stats := crawl.ComputeStats(idx)

	fmt.Printf("revision %d: %d files, %d directories\n\n", rev, stats.Files, stats.Dirs)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Language", "Files")
	for _, ls := range stats.Languages {
		table.Append(ls.Language, fmt.Sprintf("%d", ls.Files))
	}
	table.Render()

	return nil
}
