package bff

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/elara/internal/userstore"
	"github.com/nao1215/elara/internal/wallet"
	"github.com/nao1215/elara/pkg/apperror"
	"github.com/nao1215/elara/pkg/middleware"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ウォレット作成の結果。
const (
	walletStatusExists  = "exists"
	walletStatusCreated = "created"
)

// maxBodyBytes はクライアントから受け付けるリクエストボディの上限。
const maxBodyBytes = 1 << 20

// handleHealth は死活監視用のエンドポイント。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// handleMe は検証済みトークンのクレームから利用者の情報を返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"sub":      nullable(claims.Subject()),
			"email":    nullable(claims.Email()),
			"provider": nullable(claims.Provider()),
		})
	}
}

// handleGetProfile は利用者本人のプロフィールを返す。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := s.profiles.GetProfile(c.Request.Context(), middleware.GetAccessToken(c), middleware.GetUserID(c))
		if errors.Is(err, userstore.ErrNotFound) {
			s.respondError(c, apperror.New(apperror.KindNotFound, "bff.GetProfile", "プロフィールが見つかりません"))
			return
		}
		if err != nil {
			s.respondError(c, apperror.Upstream("bff.GetProfile", err))
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

// upsertProfileRequest はプロフィール更新のリクエストボディ。
type upsertProfileRequest struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

// handleUpsertProfile は利用者本人の表示名とアバターを作成または更新する。
// ボディに含まれないフィールドは変更しない。
func (s *Server) handleUpsertProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := readJSONObject(c, "bff.UpsertProfile")
		if err != nil {
			s.respondError(c, err)
			return
		}

		var req upsertProfileRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			s.respondError(c, apperror.Wrap(apperror.KindBadRequest, "bff.UpsertProfile",
				"full_name と avatar_url は文字列で指定してください", err))
			return
		}

		profile, err := s.profiles.UpsertProfile(c.Request.Context(), middleware.GetAccessToken(c), middleware.GetUserID(c),
			userstore.ProfileUpdate{FullName: req.FullName, AvatarURL: req.AvatarURL})
		if err != nil {
			s.respondError(c, apperror.Upstream("bff.UpsertProfile", err))
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

// walletResult はウォレット作成のレスポンス。
type walletResult struct {
	Wallet any    `json:"wallet"`
	Status string `json:"status"`
}

// handleCreateWallet は利用者のウォレットを返す。未作成の場合はプロバイダーで作成して紐付ける。
// 同一ユーザーの同時リクエストは1回の処理にまとめる。
func (s *Server) handleCreateWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := middleware.GetUserID(c)
		token := middleware.GetAccessToken(c)
		// 先行リクエストの切断で後続のリクエストまで失敗しないよう、キャンセルを切り離す。
		ctx := context.WithoutCancel(c.Request.Context())

		v, err, shared := s.walletFlight.Do(subject, func() (any, error) {
			return s.ensureWallet(ctx, token, subject)
		})
		if err != nil {
			s.respondError(c, err)
			return
		}
		if shared {
			zap.L().Debug("ウォレット作成を同時リクエストと共有しました", zap.String("subject", subject))
		}
		c.JSON(http.StatusOK, v)
	}
}

// ensureWallet は既存のウォレットを返すか、新たに作成してプロフィールに保存する。
func (s *Server) ensureWallet(ctx context.Context, token, subject string) (*walletResult, error) {
	profile, err := s.profiles.GetProfile(ctx, token, subject)
	if err != nil && !errors.Is(err, userstore.ErrNotFound) {
		return nil, apperror.Upstream("bff.CreateWallet", err)
	}
	if profile.HasWallet() {
		return &walletResult{
			Wallet: gin.H{"wallet_id": *profile.WalletID},
			Status: walletStatusExists,
		}, nil
	}

	user, err := s.wallets.CreateUser(ctx, subject, s.chainType)
	if err != nil {
		return nil, apperror.Upstream("bff.CreateWallet", err)
	}
	w, ok := wallet.PrimaryWallet(user)
	if !ok {
		zap.L().Error("ウォレットプロバイダーのユーザーにウォレットがありません",
			zap.String("subject", subject),
			zap.String("provider_user_id", user.ID),
		)
		return nil, apperror.New(apperror.KindUpstreamContractViolation, "bff.CreateWallet",
			"ウォレットプロバイダーがウォレットを返しませんでした").WithDetail("service", "wallet")
	}

	_, err = s.profiles.UpsertProfile(ctx, token, subject, userstore.ProfileUpdate{
		WalletID:             userstore.StringPtr(w.WalletID),
		WalletAddress:        userstore.StringPtr(w.Address),
		WalletChainType:      userstore.StringPtr(w.ChainType),
		WalletChainID:        userstore.StringPtr(w.ChainID),
		WalletIndex:          w.WalletIndex,
		WalletClient:         userstore.StringPtr(w.WalletClient),
		WalletConnectorType:  userstore.StringPtr(w.ConnectorType),
		WalletRecoveryMethod: userstore.StringPtr(w.RecoveryMethod),
		PrivyUserID:          userstore.StringPtr(user.ID),
	})
	if err != nil {
		// プロバイダー側にはウォレットが存在するため、運用者が突き合わせられるよう記録する。
		zap.L().Error("作成したウォレットをプロフィールに保存できませんでした",
			zap.String("subject", subject),
			zap.String("wallet_id", w.WalletID),
			zap.String("wallet_address", w.Address),
			zap.String("provider_user_id", user.ID),
			zap.Error(err),
		)
		return nil, apperror.Wrap(apperror.KindWalletNotPersisted, "bff.CreateWallet",
			"ウォレットは作成されましたがプロフィールへの保存に失敗しました", err).
			WithDetail("wallet_id", w.WalletID).
			WithDetail("address", w.Address)
	}

	zap.L().Info("ウォレットを作成しました",
		zap.String("subject", subject),
		zap.String("wallet_id", w.WalletID),
	)
	return &walletResult{Wallet: w, Status: walletStatusCreated}, nil
}

// handleGetBalance は利用者のウォレット残高の米ドル換算合計を数値のみで返す。
func (s *Server) handleGetBalance() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		profile, err := s.profiles.GetProfile(ctx, middleware.GetAccessToken(c), middleware.GetUserID(c))
		if err != nil && !errors.Is(err, userstore.ErrNotFound) {
			s.respondError(c, apperror.Upstream("bff.GetBalance", err))
			return
		}
		if !profile.HasWallet() {
			s.respondError(c, apperror.New(apperror.KindNotFound, "bff.GetBalance", "ユーザーにウォレットが紐付いていません"))
			return
		}

		filter := s.assets.FilterFor(profile.WalletChainTypeOrEmpty())
		snapshot, err := s.wallets.GetBalance(ctx, *profile.WalletID, filter)
		if err != nil {
			s.respondError(c, apperror.Upstream("bff.GetBalance", err))
			return
		}
		c.JSON(http.StatusOK, snapshot.TotalUSD.InexactFloat64())
	}
}

// handleCreateCrossmintWallet は利用者のメールアドレスで決済プロバイダーのウォレットを作成し、
// 作成結果をユーザーストアに保存する。
func (s *Server) handleCreateCrossmintWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := middleware.GetClaims(c).Email()
		if email == "" {
			s.respondError(c, apperror.New(apperror.KindBadRequest, "bff.CreateCrossmintWallet",
				"トークンにメールアドレスが含まれていません"))
			return
		}

		ctx := c.Request.Context()
		w, err := s.payments.CreateWallet(ctx, email)
		if err != nil {
			s.respondError(c, apperror.Upstream("bff.CreateCrossmintWallet", err))
			return
		}

		subject := middleware.GetUserID(c)
		err = s.profiles.UpsertCrossmintWallet(ctx, middleware.GetAccessToken(c), userstore.CrossmintWallet{
			ID:                 subject,
			ChainType:          w.ChainType,
			Type:               w.Type,
			Address:            w.Address,
			AdminSignerType:    w.AdminSignerType,
			AdminSignerEmail:   w.AdminSignerEmail,
			AdminSignerLocator: w.AdminSignerLocator,
		})
		if err != nil {
			zap.L().Error("作成した決済ウォレットを保存できませんでした",
				zap.String("subject", subject),
				zap.String("wallet_address", w.Address),
				zap.Error(err),
			)
			s.respondError(c, apperror.Wrap(apperror.KindWalletNotPersisted, "bff.CreateCrossmintWallet",
				"ウォレットは作成されましたが保存に失敗しました", err).
				WithDetail("address", w.Address))
			return
		}
		c.JSON(http.StatusOK, w.Raw)
	}
}

// handleCreateOrder はリクエストボディをそのまま決済プロバイダーの注文作成に転送する。
func (s *Server) handleCreateOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := readJSONObject(c, "bff.CreateOrder")
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.payments.CreateOrder(c.Request.Context(), raw)
		if err != nil {
			s.respondError(c, apperror.Upstream("bff.CreateOrder", err))
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// respondError はエラーをログに記録し、分類に応じたレスポンスでリクエストを中断する。
func (s *Server) respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.String("code", kind.String()),
		zap.Error(err),
	}
	if kind.HTTPStatus() >= http.StatusInternalServerError {
		zap.L().Error("リクエストの処理に失敗しました", fields...)
	} else {
		zap.L().Info("リクエストを拒否しました", fields...)
	}
	_ = c.Error(err)
	middleware.AbortWithError(c, err)
}

// readJSONObject はリクエストボディを読み込み、JSONオブジェクトであることを確認する。
func readJSONObject(c *gin.Context, op string) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindBadRequest, op, "リクエストボディの読み込みに失敗しました", err)
	}
	if len(raw) > maxBodyBytes {
		return nil, apperror.New(apperror.KindBadRequest, op, "リクエストボディが大きすぎます")
	}
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, apperror.New(apperror.KindBadRequest, op, "リクエストボディはJSONオブジェクトである必要があります")
	}
	return raw, nil
}

// nullable は空文字列をJSONのnullとして返す。
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
