// Package ra は svnserve のワイヤプロトコル（ra_svn）のうち、
// リポジトリクロールに必要な最小限のサブセットを実装する。
//
// ワイヤ上のデータはすべて「アイテム」で構成される。アイテムは
// ワード（英字始まりの識別子）、数値、長さ接頭辞付き文字列
// ("N:bytes")、括弧で囲まれたリストの4種類で、空白で区切られる。
package ra

import (
	"bufio"
	"fmt"
	"strconv"
)

// ItemType はワイヤアイテムの種別
type ItemType int

const (
	TypeWord ItemType = iota
	TypeNumber
	TypeString
	TypeList
)

// 不正なストリームで巨大な文字列長を申告された場合の保護上限
const maxStringLen = 64 << 20

// Item は ra_svn ワイヤプロトコルの1アイテムを表す
type Item struct {
	Type   ItemType
	Word   string
	Number uint64
	Str    []byte
	List   []Item
}

// Word はワードアイテムを作成する
func Word(w string) Item {
	return Item{Type: TypeWord, Word: w}
}

// Number は数値アイテムを作成する
func Number(n uint64) Item {
	return Item{Type: TypeNumber, Number: n}
}

// String は文字列アイテムを作成する
func String(s string) Item {
	return Item{Type: TypeString, Str: []byte(s)}
}

// List はリストアイテムを作成する
func List(items ...Item) Item {
	if items == nil {
		items = []Item{}
	}
	return Item{Type: TypeList, List: items}
}

// Bool は真偽値をワードアイテムとして作成する
func Bool(b bool) Item {
	if b {
		return Word("true")
	}
	return Word("false")
}

// IsWord はアイテムが指定のワードかどうかを返す
func (it Item) IsWord(w string) bool {
	return it.Type == TypeWord && it.Word == w
}

// Text は文字列アイテムの内容を返す
func (it Item) Text() string {
	return string(it.Str)
}

// WriteItem はアイテムをワイヤ形式で書き出す。各アイテムの後には
// 区切りの空白を1つ置く。
func WriteItem(w *bufio.Writer, it Item) error {
	switch it.Type {
	case TypeWord:
		if _, err := w.WriteString(it.Word); err != nil {
			return err
		}
	case TypeNumber:
		if _, err := w.WriteString(strconv.FormatUint(it.Number, 10)); err != nil {
			return err
		}
	case TypeString:
		if _, err := w.WriteString(strconv.Itoa(len(it.Str))); err != nil {
			return err
		}
		if err := w.WriteByte(':'); err != nil {
			return err
		}
		if _, err := w.Write(it.Str); err != nil {
			return err
		}
	case TypeList:
		if _, err := w.WriteString("( "); err != nil {
			return err
		}
		for _, sub := range it.List {
			if err := WriteItem(w, sub); err != nil {
				return err
			}
		}
		if err := w.WriteByte(')'); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown item type %d", it.Type)
	}
	return w.WriteByte(' ')
}

// ReadItem はワイヤ形式のアイテムを1つ読み込む
func ReadItem(r *bufio.Reader) (Item, error) {
	c, err := skipSpace(r)
	if err != nil {
		return Item{}, err
	}

	switch {
	case c == '(':
		return readList(r)
	case c >= '0' && c <= '9':
		return readNumberOrString(r, c)
	case isWordStart(c):
		return readWord(r, c)
	default:
		return Item{}, fmt.Errorf("unexpected byte %q in stream", c)
	}
}

func readList(r *bufio.Reader) (Item, error) {
	list := []Item{}
	for {
		c, err := skipSpace(r)
		if err != nil {
			return Item{}, err
		}
		if c == ')' {
			return Item{Type: TypeList, List: list}, nil
		}
		if err := r.UnreadByte(); err != nil {
			return Item{}, err
		}
		sub, err := ReadItem(r)
		if err != nil {
			return Item{}, err
		}
		list = append(list, sub)
	}
}

func readNumberOrString(r *bufio.Reader, first byte) (Item, error) {
	n := uint64(first - '0')
	for {
		c, err := r.ReadByte()
		if err != nil {
			return Item{}, err
		}
		if c >= '0' && c <= '9' {
			n = n*10 + uint64(c-'0')
			continue
		}
		if c == ':' {
			if n > maxStringLen {
				return Item{}, fmt.Errorf("string length %d exceeds limit", n)
			}
			buf := make([]byte, n)
			if _, err := readFull(r, buf); err != nil {
				return Item{}, err
			}
			return Item{Type: TypeString, Str: buf}, nil
		}
		if isSpace(c) {
			return Item{Type: TypeNumber, Number: n}, nil
		}
		if c == ')' {
			if err := r.UnreadByte(); err != nil {
				return Item{}, err
			}
			return Item{Type: TypeNumber, Number: n}, nil
		}
		return Item{}, fmt.Errorf("unexpected byte %q after number", c)
	}
}

func readWord(r *bufio.Reader, first byte) (Item, error) {
	word := []byte{first}
	for {
		c, err := r.ReadByte()
		if err != nil {
			return Item{}, err
		}
		if isWordChar(c) {
			word = append(word, c)
			continue
		}
		if isSpace(c) {
			return Item{Type: TypeWord, Word: string(word)}, nil
		}
		if c == ')' {
			// リスト終端の直前は空白を挟まないサーバ実装もある
			if err := r.UnreadByte(); err != nil {
				return Item{}, err
			}
			return Item{Type: TypeWord, Word: string(word)}, nil
		}
		return Item{}, fmt.Errorf("unexpected byte %q in word", c)
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func skipSpace(r *bufio.Reader) (byte, error) {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if !isSpace(c) {
			return c, nil
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func isWordStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9') || c == '-'
}
