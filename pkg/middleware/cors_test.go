package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// newCORSRouter はCORSミドルウェアを適用したテスト用ルーターを生成する。
func newCORSRouter(origins []string, handlerCalled *bool) *gin.Engine {
	router := gin.New()
	router.Use(CORS(origins, 10*time.Minute))
	handler := func(c *gin.Context) {
		if handlerCalled != nil {
			*handlerCalled = true
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/test", handler)
	router.OPTIONS("/test", handler)
	return router
}

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("許可されたオリジンからのリクエストにCORSヘッダーが設定されること", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"http://localhost:8081", "https://elara.app"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://localhost:8081")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		want := map[string]string{
			"Access-Control-Allow-Origin":      "http://localhost:8081",
			"Access-Control-Allow-Credentials": "true",
			"Access-Control-Allow-Methods":     "GET, POST, PUT, DELETE, OPTIONS",
			"Access-Control-Allow-Headers":     "Authorization, Content-Type, X-Request-ID",
			"Access-Control-Max-Age":           "600",
			"Vary":                             "Origin",
		}
		for k, v := range want {
			if got := w.Header().Get(k); got != v {
				t.Errorf("%s = %q, want %q", k, got, v)
			}
		}
	})

	t.Run("許可されていないオリジンからのリクエストにCORSヘッダーが設定されないこと", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"http://localhost:8081"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "https://evil.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty string", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want empty string", got)
		}
	})

	t.Run("ワイルドカード指定時はリクエストのオリジンがそのまま返ること", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"*"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "https://anything.example")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://anything.example")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want empty string", got)
		}
	})

	t.Run("ワイルドカードと併記された明示オリジンには認証情報の許可が返ること", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"*", "https://elara.app"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "https://elara.app")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})

	t.Run("Originヘッダーが無いリクエストにCORSヘッダーが設定されないこと", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"*"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty string", got)
		}
	})

	t.Run("OPTIONSリクエストで204が返りハンドラーが呼ばれないこと", func(t *testing.T) {
		t.Parallel()

		handlerCalled := false
		router := newCORSRouter([]string{"http://localhost:8081"}, &handlerCalled)

		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set("Origin", "http://localhost:8081")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if handlerCalled {
			t.Error("OPTIONSリクエストでハンドラーが呼ばれるべきではない")
		}
	})

	t.Run("GETリクエストではハンドラーが実行されること", func(t *testing.T) {
		t.Parallel()

		handlerCalled := false
		router := newCORSRouter([]string{"http://localhost:8081"}, &handlerCalled)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://localhost:8081")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if !handlerCalled {
			t.Error("GETリクエストでハンドラーが呼ばれるべき")
		}
	})
}
