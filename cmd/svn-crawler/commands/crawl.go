package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/svn-crawler/internal/core/crawl"
)

// CrawlAction はリポジトリをクロールして全パス一覧を出力するコマンドのアクション
func CrawlAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return err
	}

	idx, rev, err := appCtx.runCrawl(ctx, cmd)
	if err != nil {
		return err
	}

	// 除外パターンの適用
	if patterns := cmd.StringSlice("ignore"); len(patterns) > 0 {
		idx = crawl.NewIgnoreFilter(patterns).Apply(idx)
	}

	return renderIndex(idx, rev, cmd.String("format"))
}

// pathInfo はJSON出力用のエントリ表現
type pathInfo struct {
	Kind  crawl.Kind        `json:"kind"`
	Props map[string]string `json:"props,omitempty"`
}

// crawlResult はJSON出力のトップレベル構造
type crawlResult struct {
	Revision crawl.Revision      `json:"revision"`
	Paths    map[string]pathInfo `json:"paths"`
}

// renderIndex はクロール結果を指定フォーマットで標準出力に書き出す
func renderIndex(idx *crawl.PathIndex, rev crawl.Revision, format string) error {
	switch format {
	case "json":
		result := crawlResult{
			Revision: rev,
			Paths:    make(map[string]pathInfo, idx.Len()),
		}
		for _, e := range idx.Entries() {
			result.Paths[e.Path] = pathInfo{Kind: e.Kind, Props: e.Props}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)

	case "text":
		fmt.Printf("revision %d, %d paths\n\n", rev, idx.Len())
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Path", "Kind", "Props")
		for _, path := range idx.Paths() {
			e, _ := idx.Lookup(path)
			name := path
			if name == "" {
				name = "."
			}
			table.Append(name, string(e.Kind), fmt.Sprintf("%d", len(e.Props)))
		}
		table.Render()
		return nil

	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
