package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定（スナップショット保存用）
	Database DatabaseConfig

	// SVN接続設定
	SVN SVNConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SVNConfig はSubversionリポジトリへの接続設定
type SVNConfig struct {
	Username string
	Password string
	// ConfigDir はローカルの Subversion 設定ディレクトリ
	// （認証キャッシュの参照先）。空の場合は既定の場所を使う。
	ConfigDir string
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  slog.Level
	Format string // "json" or "text"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "svncrawler"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "svncrawler"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		SVN: SVNConfig{
			Username:  getEnv("SVN_USERNAME", ""),
			Password:  getEnv("SVN_PASSWORD", ""),
			ConfigDir: getEnv("SVN_CONFIG_DIR", ""),
		},
		Log: LogConfig{
			Level:  getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsLevel は環境変数をログレベルとして取得します
func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultValue
	}
}
