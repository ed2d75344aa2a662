package ra

import (
	"bufio"
	"fmt"
	"net"
)

// conn は ra_svn のアイテム単位の送受信を提供する
type conn struct {
	raw net.Conn
	r   *bufio.Reader
	w   *bufio.Writer
}

func newConn(raw net.Conn) *conn {
	return &conn{
		raw: raw,
		r:   bufio.NewReader(raw),
		w:   bufio.NewWriter(raw),
	}
}

// writeList はトップレベルのリストを1つ書き出してフラッシュする
func (c *conn) writeList(items ...Item) error {
	if err := WriteItem(c.w, List(items...)); err != nil {
		return err
	}
	return c.w.Flush()
}

// readItem はアイテムを1つ読み込む
func (c *conn) readItem() (Item, error) {
	return ReadItem(c.r)
}

// readResponse は success/failure 応答を読み込む。
// success の場合はパラメータリストを返し、failure の場合はサーバの
// 診断メッセージをそのまま含むエラーを返す。
func (c *conn) readResponse() ([]Item, error) {
	it, err := c.readItem()
	if err != nil {
		return nil, err
	}
	return parseResponse(it)
}

func parseResponse(it Item) ([]Item, error) {
	if it.Type != TypeList || len(it.List) < 1 || it.List[0].Type != TypeWord {
		return nil, fmt.Errorf("malformed response item")
	}
	switch it.List[0].Word {
	case "success":
		if len(it.List) < 2 || it.List[1].Type != TypeList {
			return nil, fmt.Errorf("malformed success response")
		}
		return it.List[1].List, nil
	case "failure":
		return nil, serverError(it)
	default:
		return nil, fmt.Errorf("unexpected response %q", it.List[0].Word)
	}
}

// serverError は failure 応答からサーバのエラーメッセージを取り出す。
// failure のパラメータは ( apr-err message file line ) のリスト列で、
// メッセージは加工せずそのまま持ち上げる。
func serverError(it Item) error {
	if len(it.List) >= 2 && it.List[1].Type == TypeList {
		for _, e := range it.List[1].List {
			if e.Type == TypeList && len(e.List) >= 2 && e.List[1].Type == TypeString {
				return fmt.Errorf("%s", e.List[1].Text())
			}
		}
	}
	return fmt.Errorf("server reported an unspecified failure")
}

func (c *conn) close() error {
	return c.raw.Close()
}
