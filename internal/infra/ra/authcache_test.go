package ra

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRealm = "<svn://svn.example.org:3690> Example Realm"

// writeCacheFile は Subversion ハッシュファイル形式で認証キャッシュを
// 書き出します
func writeCacheFile(t *testing.T, configDir, realm string, fields map[string]string) {
	t.Helper()

	dir := filepath.Join(configDir, "auth", "svn.simple")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	content := ""
	for _, key := range []string{"svn:realmstring", "username", "password", "passtype"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		content += fmt.Sprintf("K %d\n%s\nV %d\n%s\n", len(key), key, len(value), value)
	}
	content += "END\n"

	sum := md5.Sum([]byte(realm))
	path := filepath.Join(dir, hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// TestLookupCachedCredentials はキャッシュされた認証情報の取得をテストします
func TestLookupCachedCredentials(t *testing.T) {
	configDir := t.TempDir()
	writeCacheFile(t, configDir, testRealm, map[string]string{
		"svn:realmstring": testRealm,
		"username":        "alice",
		"password":        "secret",
		"passtype":        "simple",
	})

	creds, ok := lookupCachedCredentials(configDir, testRealm)
	require.True(t, ok)
	assert.Equal(t, "alice", creds.username)
	assert.Equal(t, "secret", creds.password)
}

// TestLookupCachedCredentials_Miss はキャッシュ不在時の挙動をテストします
func TestLookupCachedCredentials_Miss(t *testing.T) {
	t.Run("設定ディレクトリ未指定", func(t *testing.T) {
		_, ok := lookupCachedCredentials("", testRealm)
		assert.False(t, ok)
	})

	t.Run("設定ディレクトリが存在しない", func(t *testing.T) {
		_, ok := lookupCachedCredentials(filepath.Join(t.TempDir(), "missing"), testRealm)
		assert.False(t, ok)
	})

	t.Run("別レルムのキャッシュのみ存在", func(t *testing.T) {
		configDir := t.TempDir()
		writeCacheFile(t, configDir, "<svn://other> realm", map[string]string{
			"username": "bob", "password": "x",
		})
		_, ok := lookupCachedCredentials(configDir, testRealm)
		assert.False(t, ok)
	})
}

// TestLookupCachedCredentials_Rejected は利用できないキャッシュが
// 無視されることをテストします
func TestLookupCachedCredentials_Rejected(t *testing.T) {
	t.Run("平文以外の保存形式", func(t *testing.T) {
		configDir := t.TempDir()
		writeCacheFile(t, configDir, testRealm, map[string]string{
			"username": "alice", "password": "gnome-keyring-token", "passtype": "gnome-keyring",
		})
		_, ok := lookupCachedCredentials(configDir, testRealm)
		assert.False(t, ok)
	})

	t.Run("パスワード欠落", func(t *testing.T) {
		configDir := t.TempDir()
		writeCacheFile(t, configDir, testRealm, map[string]string{"username": "alice"})
		_, ok := lookupCachedCredentials(configDir, testRealm)
		assert.False(t, ok)
	})

	t.Run("形式不正", func(t *testing.T) {
		configDir := t.TempDir()
		dir := filepath.Join(configDir, "auth", "svn.simple")
		require.NoError(t, os.MkdirAll(dir, 0o700))
		sum := md5.Sum([]byte(testRealm))
		path := filepath.Join(dir, hex.EncodeToString(sum[:]))
		require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o600))

		_, ok := lookupCachedCredentials(configDir, testRealm)
		assert.False(t, ok)
	})
}
