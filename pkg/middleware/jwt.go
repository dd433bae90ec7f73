package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/elara/pkg/apperror"
	"github.com/nao1215/elara/pkg/auth"
	"go.uber.org/zap"
)

// TokenVerifier はBearerトークンを検証してクレームを返す。
// *auth.Verifierが実装する。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Claims, error)
}

// コンテキストに格納する値のキー。
const (
	contextKeyUserID = "user_id"
	contextKeyClaims = "claims"
	contextKeyToken  = "access_token"
)

// BearerAuth はAuthorizationヘッダーのBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにユーザーID・クレーム・トークンを設定する。
// ヘッダーが無い・Bearer形式でない場合は、検証器を呼ばずに401で中断する。
func BearerAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperror.Body(
				apperror.New(apperror.KindUnauthorized, "middleware.BearerAuth", "Authorizationヘッダーが必要です"),
			))
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		tokenString = strings.TrimSpace(tokenString)
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperror.Body(
				apperror.New(apperror.KindUnauthorized, "middleware.BearerAuth", "Bearer トークン形式が不正です"),
			))
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			fields := []zap.Field{
				zap.String("request_id", GetRequestID(c)),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			}
			if apperror.KindOf(err) == apperror.KindServerMisconfigured {
				zap.L().Error("トークン検証の設定が不足しています", fields...)
			} else {
				zap.L().Info("トークンの検証に失敗しました", fields...)
			}
			AbortWithError(c, err)
			return
		}

		c.Set(contextKeyUserID, claims.Subject())
		c.Set(contextKeyClaims, claims)
		c.Set(contextKeyToken, tokenString)
		c.Next()
	}
}

// AbortWithError はエラーの分類に応じたステータスとJSONボディでリクエストを中断する。
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperror.KindOf(err).HTTPStatus(), apperror.Body(err))
}

// GetUserID はGinコンテキストからユーザーID（sub）を取得する。
// BearerAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// GetClaims はGinコンテキストから検証済みクレームを取得する。
func GetClaims(c *gin.Context) auth.Claims {
	v, _ := c.Get(contextKeyClaims)
	claims, _ := v.(auth.Claims)
	return claims
}

// GetAccessToken はGinコンテキストから検証済みのBearerトークンを取得する。
// ユーザーストアへ利用者本人の権限で問い合わせる際に使う。
func GetAccessToken(c *gin.Context) string {
	return c.GetString(contextKeyToken)
}
