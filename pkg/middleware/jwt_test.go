package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/elara/pkg/apperror"
	"github.com/nao1215/elara/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubVerifier はテスト用のTokenVerifier。呼び出し回数を記録する。
type stubVerifier struct {
	claims auth.Claims
	err    error
	calls  atomic.Int32
	token  atomic.Value
}

func (s *stubVerifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	s.calls.Add(1)
	s.token.Store(token)
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

// newAuthRouter はBearerAuthを適用したテスト用ルーターを生成する。
func newAuthRouter(v TokenVerifier, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(BearerAuth(v))
	if handler == nil {
		handler = func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	}
	router.GET("/test", handler)
	return router
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v", err)
	}
	return body
}

// TestBearerAuth はBearerAuthミドルウェアを検証する。
func TestBearerAuth(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでクレームとトークンがコンテキストに設定されること", func(t *testing.T) {
		t.Parallel()

		v := &stubVerifier{claims: auth.Claims{"sub": "user-ok", "email": "ok@example.com"}}
		var gotUserID, gotToken string
		var gotClaims auth.Claims
		router := newAuthRouter(v, func(c *gin.Context) {
			gotUserID = GetUserID(c)
			gotToken = GetAccessToken(c)
			gotClaims = GetClaims(c)
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer token-abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if gotUserID != "user-ok" {
			t.Errorf("GetUserID() = %q, want %q", gotUserID, "user-ok")
		}
		if gotToken != "token-abc" {
			t.Errorf("GetAccessToken() = %q, want %q", gotToken, "token-abc")
		}
		if gotClaims.Email() != "ok@example.com" {
			t.Errorf("GetClaims().Email() = %q", gotClaims.Email())
		}
		if v.token.Load() != "token-abc" {
			t.Errorf("検証器に渡されたトークン = %v, want token-abc", v.token.Load())
		}
	})

	t.Run("Authorizationヘッダーが無い場合検証器を呼ばずに401が返ること", func(t *testing.T) {
		t.Parallel()

		v := &stubVerifier{claims: auth.Claims{"sub": "x"}}
		router := newAuthRouter(v, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		body := decodeBody(t, w)
		if body["error"] != "Authorizationヘッダーが必要です" {
			t.Errorf("error = %v", body["error"])
		}
		if v.calls.Load() != 0 {
			t.Errorf("検証器の呼び出し回数 = %d, want 0", v.calls.Load())
		}
	})

	t.Run("Bearer接頭辞が無い場合検証器を呼ばずに401が返ること", func(t *testing.T) {
		t.Parallel()

		for _, header := range []string{"token-only", "Basic dXNlcjpwYXNz", "Bearer ", "bearer token"} {
			v := &stubVerifier{claims: auth.Claims{"sub": "x"}}
			router := newAuthRouter(v, nil)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", header)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("Authorization=%q: ステータスコード = %d, want %d", header, w.Code, http.StatusUnauthorized)
			}
			if v.calls.Load() != 0 {
				t.Errorf("Authorization=%q: 検証器の呼び出し回数 = %d, want 0", header, v.calls.Load())
			}
		}
	})

	t.Run("検証に失敗した場合401が返りハンドラーが呼ばれないこと", func(t *testing.T) {
		t.Parallel()

		handlerCalled := false
		v := &stubVerifier{err: apperror.New(apperror.KindUnauthorized, "auth.Verify", "トークンが無効です")}
		router := newAuthRouter(v, func(c *gin.Context) {
			handlerCalled = true
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer bad")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		body := decodeBody(t, w)
		if body["error"] != "トークンが無効です" || body["code"] != "unauthorized" {
			t.Errorf("body = %v", body)
		}
		if handlerCalled {
			t.Error("検証失敗時にハンドラーが呼ばれるべきではない")
		}
	})

	t.Run("検証の設定不足の場合500が返ること", func(t *testing.T) {
		t.Parallel()

		v := &stubVerifier{err: apperror.New(apperror.KindServerMisconfigured, "auth.Verify", "シークレットが設定されていません")}
		router := newAuthRouter(v, nil)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if body := decodeBody(t, w); body["code"] != "server_misconfigured" {
			t.Errorf("code = %v, want server_misconfigured", body["code"])
		}
	})
}

// TestGetUserID はGetUserID関数を検証する。
func TestGetUserID(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストにuser_idが設定されていない場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty string", got)
		}
		if got := GetClaims(c); got != nil {
			t.Errorf("GetClaims() = %v, want nil", got)
		}
	})

	t.Run("user_idが文字列以外の型の場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("user_id", 12345)
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty string", got)
		}
	})
}
