package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CORS は指定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// 認証情報付きのリクエストを許可し、プリフライトの結果はmaxAgeの間キャッシュさせる。
// 許可リストに "*" を含めると任意のオリジンを許可する（レスポンスにはオリジンをそのまま返す）。
// ただし "*" でのみ許可されたオリジンにはAccess-Control-Allow-Credentialsを返さない。
func CORS(allowedOrigins []string, maxAge time.Duration) gin.HandlerFunc {
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = struct{}{}
	}
	_, allowAny := originsSet["*"]
	if allowAny {
		zap.L().Warn("CORSで任意のオリジンを許可しています。認証情報付きリクエストは明示したオリジンにのみ許可されます")
	}
	maxAgeSeconds := strconv.Itoa(int(maxAge.Seconds()))

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, ok := originsSet[origin]
		if origin != "" && (ok || allowAny) {
			c.Header("Access-Control-Allow-Origin", origin)
			if ok {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			c.Header("Access-Control-Max-Age", maxAgeSeconds)
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
