package ra

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const (
	mechAnonymous = "ANONYMOUS"
	mechCramMD5   = "CRAM-MD5"
)

// credentials は認証に使うユーザ名とパスワードの組
type credentials struct {
	username string
	password string
}

// authenticate はサーバの認証要求に応答する。
// mechs はサーバが提示した機構の一覧、realm は認証レルム。
// 認証情報が明示されていない場合はローカルの認証キャッシュを参照し、
// それでも得られなければ匿名認証を試みる。
func (s *Session) authenticate(mechs []string, realm string) error {
	creds := credentials{username: s.username, password: s.password}
	if creds.password == "" {
		if cached, ok := lookupCachedCredentials(s.configDir, realm); ok {
			slog.Debug("認証キャッシュから認証情報を取得", "realm", realm, "username", cached.username)
			creds = cached
		}
	}

	if creds.password != "" && contains(mechs, mechCramMD5) {
		return s.authCramMD5(creds)
	}
	if contains(mechs, mechAnonymous) {
		return s.authAnonymous()
	}

	return fmt.Errorf("no supported auth mechanism in %v", mechs)
}

// authAnonymous は ANONYMOUS 機構で認証する
func (s *Session) authAnonymous() error {
	if err := s.conn.writeList(Word(mechAnonymous), List(String("anonymous"))); err != nil {
		return fmt.Errorf("failed to send auth mechanism: %w", err)
	}
	if _, err := s.conn.readResponse(); err != nil {
		return fmt.Errorf("anonymous auth rejected: %w", err)
	}
	return nil
}

// authCramMD5 は CRAM-MD5 機構で認証する。
// サーバのチャレンジに対し "username HEX(HMAC-MD5(password, challenge))"
// を応答する。
func (s *Session) authCramMD5(creds credentials) error {
	if err := s.conn.writeList(Word(mechCramMD5), List()); err != nil {
		return fmt.Errorf("failed to send auth mechanism: %w", err)
	}

	step, err := s.conn.readItem()
	if err != nil {
		return fmt.Errorf("failed to read auth challenge: %w", err)
	}
	if step.Type != TypeList || len(step.List) < 2 || !step.List[0].IsWord("step") ||
		step.List[1].Type != TypeList || len(step.List[1].List) < 1 {
		// チャレンジなしで success/failure が返る場合もある
		if _, err := parseResponse(step); err != nil {
			return fmt.Errorf("CRAM-MD5 auth rejected: %w", err)
		}
		return nil
	}

	challenge := step.List[1].List[0].Str
	mac := hmac.New(md5.New, []byte(creds.password))
	mac.Write(challenge)
	digest := hex.EncodeToString(mac.Sum(nil))

	response := creds.username + " " + digest
	if err := WriteItem(s.conn.w, String(response)); err != nil {
		return fmt.Errorf("failed to send auth response: %w", err)
	}
	if err := s.conn.w.Flush(); err != nil {
		return fmt.Errorf("failed to send auth response: %w", err)
	}

	if _, err := s.conn.readResponse(); err != nil {
		return fmt.Errorf("CRAM-MD5 auth rejected: %w", err)
	}
	return nil
}

func contains(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
