package ra

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultConfigDir は Subversion のローカル設定ディレクトリを返す。
// 見つからない場合は空文字列を返し、呼び出し側はキャッシュなしで動作する。
func DefaultConfigDir() string {
	if dir := os.Getenv("SVN_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".subversion")
}

// lookupCachedCredentials はローカルの認証キャッシュ
// (<configDir>/auth/svn.simple/<MD5(realm)>) から認証情報を探す。
// 設定ディレクトリが存在しない・読めない・形式が不正といった状況は
// すべて「キャッシュなし」として扱い、クロール自体は失敗させない。
func lookupCachedCredentials(configDir, realm string) (credentials, bool) {
	if configDir == "" {
		return credentials{}, false
	}

	sum := md5.Sum([]byte(realm))
	path := filepath.Join(configDir, "auth", "svn.simple", hex.EncodeToString(sum[:]))

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("認証キャッシュを読めないため無視します", "path", path, "error", err)
		}
		return credentials{}, false
	}
	defer f.Close()

	fields, err := parseHashFile(f)
	if err != nil {
		slog.Debug("認証キャッシュの形式が不正のため無視します", "path", path, "error", err)
		return credentials{}, false
	}

	if pt, ok := fields["passtype"]; ok && pt != "simple" {
		return credentials{}, false
	}
	username, password := fields["username"], fields["password"]
	if username == "" || password == "" {
		return credentials{}, false
	}

	return credentials{username: username, password: password}, true
}

// parseHashFile は Subversion のハッシュファイル形式を解析する。
// 形式は "K <len>\n<key>\nV <len>\n<value>\n" の繰り返しで、
// "END" 行で終わる。
func parseHashFile(f *os.File) (map[string]string, error) {
	fields := make(map[string]string)
	r := bufio.NewReader(f)

	for {
		header, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if header == "END" {
			return fields, nil
		}

		keyLen, err := parseLengthHeader(header, "K ")
		if err != nil {
			return nil, err
		}
		key, err := readValue(r, keyLen)
		if err != nil {
			return nil, err
		}

		header, err = readLine(r)
		if err != nil {
			return nil, err
		}
		valLen, err := parseLengthHeader(header, "V ")
		if err != nil {
			return nil, err
		}
		value, err := readValue(r, valLen)
		if err != nil {
			return nil, err
		}

		fields[key] = value
	}
}

func parseLengthHeader(line, prefix string) (int, error) {
	if !strings.HasPrefix(line, prefix) {
		return 0, fmt.Errorf("unexpected header line %q", line)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(line, prefix))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid length in header %q", line)
	}
	return n, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\n"), nil
}

func readValue(r *bufio.Reader, length int) (string, error) {
	buf := make([]byte, length)
	if _, err := readFull(r, buf); err != nil {
		return "", err
	}
	// 値の直後の改行を捨てる
	if _, err := r.ReadByte(); err != nil {
		return "", err
	}
	return string(buf), nil
}
