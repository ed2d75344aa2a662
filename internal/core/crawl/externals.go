package crawl

import (
	"fmt"
	"strconv"
	"strings"
)

// externalsProp は外部参照定義を保持する Subversion プロパティ名
const externalsProp = "svn:externals"

// External はディレクトリに設定された svn:externals 定義の1行分を表す
type External struct {
	// DirPath はプロパティを保持するディレクトリのパス
	DirPath string
	// Path は外部参照を取り込むローカルパス（DirPath からの相対）
	Path string
	// URL は参照先リポジトリの URL。^/ や ../ で始まる相対形式の
	// 場合もそのまま保持する。
	URL string
	// Revision は -r で固定されたリビジョン。未固定なら Head。
	Revision Revision
}

// Relative は参照先 URL がリポジトリ相対形式かどうかを返す
func (e External) Relative() bool {
	return strings.HasPrefix(e.URL, "^/") ||
		strings.HasPrefix(e.URL, "../") ||
		strings.HasPrefix(e.URL, "//") ||
		strings.HasPrefix(e.URL, "/")
}

// Externals はインデックス中の全ディレクトリから svn:externals 定義を
// 収集して解析する。定義を持つディレクトリがなければ空のスライスを返す。
func Externals(idx *PathIndex) ([]External, error) {
	var externals []External

	for _, e := range idx.Entries() {
		if !e.IsDir() {
			continue
		}
		defs, ok := e.Props[externalsProp]
		if !ok {
			continue
		}

		for _, line := range strings.Split(defs, "\n") {
			line = strings.Trim(line, " \t\r")
			// 空行とコメント行をスキップ
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			ext, err := parseExternalLine(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse svn:externals on %q: %w", e.Path, err)
			}
			ext.DirPath = e.Path
			externals = append(externals, ext)
		}
	}

	return externals, nil
}

// parseExternalLine は svn:externals 定義の1行を解析する。
// 新形式 "[-rREV] URL path" と旧形式 "path [-rREV] URL" の両方を受け付け、
// URL とローカルパスはトークンが URL 形式かどうかで判別する。
func parseExternalLine(line string) (External, error) {
	tokens := strings.Fields(line)

	ext := External{Revision: Head}

	var rest []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == "-r":
			if i+1 >= len(tokens) {
				return External{}, fmt.Errorf("dangling -r in %q", line)
			}
			i++
			rev, err := parseExternalRevision(tokens[i])
			if err != nil {
				return External{}, err
			}
			ext.Revision = rev
		case strings.HasPrefix(tok, "-r"):
			rev, err := parseExternalRevision(tok[2:])
			if err != nil {
				return External{}, err
			}
			ext.Revision = rev
		default:
			rest = append(rest, tok)
		}
	}

	if len(rest) != 2 {
		return External{}, fmt.Errorf("malformed svn:externals definition %q", line)
	}

	if isExternalURL(rest[0]) {
		ext.URL, ext.Path = rest[0], rest[1]
	} else if isExternalURL(rest[1]) {
		ext.Path, ext.URL = rest[0], rest[1]
	} else {
		return External{}, fmt.Errorf("no URL in svn:externals definition %q", line)
	}

	// URL@peg 形式のペグリビジョンはリビジョン固定と同様に扱う
	if at := strings.LastIndex(ext.URL, "@"); at > 0 && ext.Revision.IsHead() {
		if rev, err := parseExternalRevision(ext.URL[at+1:]); err == nil {
			ext.Revision = rev
			ext.URL = ext.URL[:at]
		}
	}

	return ext, nil
}

func parseExternalRevision(s string) (Revision, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid external revision %q", s)
	}
	return Revision(n), nil
}

// isExternalURL はトークンが参照先 URL かローカルパスかを判別する
func isExternalURL(tok string) bool {
	if strings.Contains(tok, "://") {
		return true
	}
	return strings.HasPrefix(tok, "^/") ||
		strings.HasPrefix(tok, "../") ||
		strings.HasPrefix(tok, "//") ||
		strings.HasPrefix(tok, "/")
}
