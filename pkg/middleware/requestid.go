package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// headerKeyRequestID はリクエストIDを運ぶHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

const contextKeyRequestID = "request_id"

// maxRequestIDLength はクライアントから受け付けるリクエストIDの最大長。
const maxRequestIDLength = 128

// RequestID はリクエストごとにIDを割り当てるGinミドルウェアを返す。
// クライアントがX-Request-IDを送った場合はそれを使い、無ければUUIDを生成する。
// IDはレスポンスヘッダーにも設定する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerKeyRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(headerKeyRequestID, id)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
