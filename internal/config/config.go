// Package config は環境変数からBFFの設定を読み込み、起動時に検証する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ユーザーストアのバックエンド種別。
const (
	BackendPostgREST = "postgrest"
	BackendSQLite    = "sqlite"
)

// Config はBFF全体の設定を保持する。
type Config struct {
	// Port はHTTPサーバーの待ち受けポート。
	Port string
	// LogLevel はzapのログレベル（debug, info, warn, error）。
	LogLevel string

	Identity  IdentityConfig
	UserStore UserStoreConfig
	Wallet    WalletConfig
	Payment   PaymentConfig
	CORS      CORSConfig
}

// IdentityConfig はトークン検証に使う認証基盤の設定。
type IdentityConfig struct {
	// JWTSecret は対称鍵（HS系）署名の検証に使う共有シークレット。
	JWTSecret string
	// JWKSURL は非対称鍵署名の検証に使う公開鍵セットのURL。
	JWKSURL string
}

// UserStoreConfig はプロフィールを保存するユーザーストアの設定。
type UserStoreConfig struct {
	Backend    string
	URL        string
	AnonKey    string
	SQLitePath string
}

// WalletConfig はウォレットプロバイダーの設定。
type WalletConfig struct {
	APIBase    string
	AppID      string
	AppSecret  string
	ChainType  string
	AssetsFile string
}

// PaymentConfig は決済プロバイダーの設定。
type PaymentConfig struct {
	APIBase      string
	APIKey       string
	DefaultChain string
}

// CORSConfig はクロスオリジンポリシーの設定。
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         time.Duration
}

// LoadDotEnv はカレントディレクトリの.envを読み込む。ファイルが無い場合は何もしない。
// 既に設定されている環境変数は上書きしない。
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("%sの読み込みに失敗: %w", name, err)
		}
	}
	return nil
}

// Load は環境変数から設定を読み込む。値の形式が不正な場合のみエラーを返す。
// 必須項目の有無はValidateで検証する。
func Load() (*Config, error) {
	corsMaxAge, err := getEnvDuration("CORS_MAX_AGE", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:     getEnvString("PORT", "8000"),
		LogLevel: getEnvString("LOG_LEVEL", "info"),
		Identity: IdentityConfig{
			JWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),
			JWKSURL:   os.Getenv("SUPABASE_JWKS_URL"),
		},
		UserStore: UserStoreConfig{
			Backend:    strings.ToLower(getEnvString("USER_STORE_BACKEND", BackendPostgREST)),
			URL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			AnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
			SQLitePath: getEnvString("USER_STORE_SQLITE_PATH", "elara.db"),
		},
		Wallet: WalletConfig{
			APIBase:    getEnvString("PRIVY_API_BASE", "https://api.privy.io"),
			AppID:      os.Getenv("PRIVY_APP_ID"),
			AppSecret:  os.Getenv("PRIVY_APP_SECRET"),
			ChainType:  getEnvString("PRIVY_CHAIN_TYPE", "ethereum"),
			AssetsFile: os.Getenv("BALANCE_ASSETS_FILE"),
		},
		Payment: PaymentConfig{
			APIBase:      os.Getenv("CROSSMINT_API_BASE"),
			APIKey:       os.Getenv("CROSSMINT_SERVER_SIDE"),
			DefaultChain: getEnvString("CROSSMINT_DEFAULT_CHAIN", "base-sepolia"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8081"}),
			MaxAge:         corsMaxAge,
		},
	}, nil
}

// Validate は必須項目の欠落や矛盾を検証し、全ての問題をまとめて返す。
func (c *Config) Validate() error {
	var errs []error

	if c.Identity.JWTSecret == "" && c.Identity.JWKSURL == "" {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET と SUPABASE_JWKS_URL のどちらかが必要です"))
	}

	switch c.UserStore.Backend {
	case BackendPostgREST:
		if c.UserStore.URL == "" {
			errs = append(errs, errors.New("SUPABASE_URL が必要です"))
		}
		if c.UserStore.AnonKey == "" {
			errs = append(errs, errors.New("SUPABASE_ANON_KEY が必要です"))
		}
	case BackendSQLite:
		if c.UserStore.SQLitePath == "" {
			errs = append(errs, errors.New("USER_STORE_SQLITE_PATH が必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("USER_STORE_BACKEND が不正です: %q", c.UserStore.Backend))
	}

	if c.Wallet.AppID == "" {
		errs = append(errs, errors.New("PRIVY_APP_ID が必要です"))
	}
	if c.Wallet.AppSecret == "" {
		errs = append(errs, errors.New("PRIVY_APP_SECRET が必要です"))
	}
	if c.Payment.APIBase == "" {
		errs = append(errs, errors.New("CROSSMINT_API_BASE が必要です"))
	}
	if c.Payment.APIKey == "" {
		errs = append(errs, errors.New("CROSSMINT_SERVER_SIDE が必要です"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL が不正です: %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// NewLogger はLOG_LEVELに従った本番用zapロガーを生成する。
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("ログレベルの解析に失敗: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("%s の期間指定が不正です: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
