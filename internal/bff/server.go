package bff

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/elara/internal/config"
	"github.com/nao1215/elara/internal/payment"
	"github.com/nao1215/elara/internal/userstore"
	"github.com/nao1215/elara/internal/wallet"
	"github.com/nao1215/elara/pkg/auth"
	"github.com/nao1215/elara/pkg/httpclient"
	"github.com/nao1215/elara/pkg/metrics"
	"github.com/nao1215/elara/pkg/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// shutdownTimeout はシャットダウン時に処理中のリクエストを待つ上限時間。
const shutdownTimeout = 10 * time.Second

// ProfileStore はプロフィールの読み書きを行うユーザーストア。
type ProfileStore interface {
	GetProfile(ctx context.Context, token, id string) (*userstore.Profile, error)
	UpsertProfile(ctx context.Context, token, id string, update userstore.ProfileUpdate) (*userstore.Profile, error)
	UpsertCrossmintWallet(ctx context.Context, token string, w userstore.CrossmintWallet) error
}

// WalletProvider はウォレットプロバイダーの操作。
type WalletProvider interface {
	CreateUser(ctx context.Context, subject, chainType string) (*wallet.User, error)
	GetBalance(ctx context.Context, walletID string, filter wallet.BalanceFilter) (*wallet.Snapshot, error)
}

// PaymentProvider は決済プロバイダーの操作。
type PaymentProvider interface {
	CreateOrder(ctx context.Context, payload []byte) (map[string]any, error)
	CreateWallet(ctx context.Context, email string) (*payment.CustodialWallet, error)
}

// Deps はServerが依存する外部サービスのクライアント。
type Deps struct {
	Verifier middleware.TokenVerifier
	Profiles ProfileStore
	Wallets  WalletProvider
	Payments PaymentProvider
	// Assets はチェーン種別ごとの残高問い合わせ対象。nilの場合は組み込みの表を使う。
	Assets *wallet.AssetTable
	// ChainType は新規ウォレットのチェーン種別。
	ChainType string
	// Metrics はnilの場合に新規生成する。
	Metrics *metrics.Metrics
}

// Server はBFFのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// verifier はBearerトークンの検証器。
	verifier middleware.TokenVerifier
	// profiles はユーザーストア。
	profiles ProfileStore
	// wallets はウォレットプロバイダー。
	wallets WalletProvider
	// payments は決済プロバイダー。
	payments PaymentProvider
	// assets はチェーン種別ごとの残高問い合わせ対象。
	assets *wallet.AssetTable
	// chainType は新規ウォレットのチェーン種別。
	chainType string
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
	// walletFlight は同一ユーザーのウォレット作成を1つにまとめる。
	walletFlight singleflight.Group
	// closers はシャットダウン時に閉じるリソース。
	closers []func() error
}

// New は依存を注入してServerを生成する。
func New(port string, deps Deps, cors config.CORSConfig) *Server {
	if deps.Assets == nil {
		deps.Assets = wallet.DefaultAssetTable()
	}
	if deps.ChainType == "" {
		deps.ChainType = "ethereum"
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(deps.Metrics.Middleware())
	router.Use(middleware.CORS(cors.AllowedOrigins, cors.MaxAge))

	s := &Server{
		router:    router,
		port:      port,
		verifier:  deps.Verifier,
		profiles:  deps.Profiles,
		wallets:   deps.Wallets,
		payments:  deps.Payments,
		assets:    deps.Assets,
		chainType: deps.ChainType,
		metrics:   deps.Metrics,
	}
	s.setupRoutes()
	return s
}

// NewServer は設定から外部サービスのクライアントを組み立ててServerを生成する。
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	m := metrics.New()
	observe := httpclient.WithObserver(m.ObserveUpstream)

	var keys *auth.KeySetCache
	if cfg.Identity.JWKSURL != "" {
		keys = auth.NewKeySetCache(cfg.Identity.JWKSURL, observe)
	}

	var (
		profiles ProfileStore
		closers  []func() error
	)
	switch cfg.UserStore.Backend {
	case config.BackendSQLite:
		store, err := userstore.OpenSQLite(ctx, cfg.UserStore.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("ユーザーストアの初期化に失敗: %w", err)
		}
		profiles = store
		closers = append(closers, store.Close)
	default:
		profiles = userstore.NewPostgREST(cfg.UserStore.URL, cfg.UserStore.AnonKey, observe)
	}

	assets, err := wallet.LoadAssetTable(cfg.Wallet.AssetsFile)
	if err != nil {
		return nil, fmt.Errorf("残高問い合わせ対象の読み込みに失敗: %w", err)
	}

	s := New(cfg.Port, Deps{
		Verifier:  auth.NewVerifier(cfg.Identity.JWTSecret, keys),
		Profiles:  profiles,
		Wallets:   wallet.NewClient(cfg.Wallet.APIBase, cfg.Wallet.AppID, cfg.Wallet.AppSecret, observe),
		Payments:  payment.NewClient(cfg.Payment.APIBase, cfg.Payment.APIKey, cfg.Payment.DefaultChain, observe),
		Assets:    assets,
		ChainType: cfg.Wallet.ChainType,
		Metrics:   m,
	}, cfg.CORS)
	s.closers = closers
	return s, nil
}

// Handler はルーティング済みのHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待つ。
// キャンセル後は処理中のリクエストを待ってから終了する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("BFFを起動しました", zap.String("port", s.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zap.L().Info("BFFを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// Close はサーバーが保持するリソースを解放する。
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証不要
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	authed := s.router.Group("/")
	authed.Use(middleware.BearerAuth(s.verifier))
	{
		authed.GET("/me", s.handleMe())

		profiles := authed.Group("/profiles")
		{
			profiles.GET("/me", s.handleGetProfile())
			profiles.POST("/me", s.handleUpsertProfile())
			profiles.POST("/create_wallet", s.handleCreateWallet())
			profiles.GET("/get_balance", s.handleGetBalance())
			profiles.POST("/crossmint_wallet", s.handleCreateCrossmintWallet())
		}

		// 決済プロバイダーのAPIバージョンをパスに含める
		authed.POST("/api/2022-06-09/orders", s.handleCreateOrder())
	}
}
