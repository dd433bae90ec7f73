package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nao1215/elara/pkg/apperror"
)

// route はスタブが返すレスポンス。
type route struct {
	status int
	body   string
}

// providerStub はパスごとに固定レスポンスを返す決済プロバイダーのスタブ。
type providerStub struct {
	mu     sync.Mutex
	routes map[string]route
	calls  map[string]int
	bodies map[string][]byte
	apiKey string
}

func newProviderStub(t *testing.T, routes map[string]route) (*providerStub, *httptest.Server) {
	t.Helper()

	stub := &providerStub{routes: routes, calls: map[string]int{}, bodies: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		stub.mu.Lock()
		stub.calls[r.URL.Path]++
		stub.bodies[r.URL.Path] = body
		stub.apiKey = r.Header.Get("X-API-KEY")
		stub.mu.Unlock()

		rt, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rt.status)
		_, _ = io.WriteString(w, rt.body)
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *providerStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *providerStub) key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

func (s *providerStub) body(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[path]
}

const (
	txPath = "/api/2022-06-09/wallets/0xpayer/transactions"

	preparedOrder = `{"order":{"id":"order-1","payment":{"chain":"base","preparation":{"chain":"base-sepolia","serializedTransaction":"0xdeadbeef"}}}}`
)

// TestCreateOrder はClient.CreateOrderを検証する。
func TestCreateOrder(t *testing.T) {
	t.Parallel()

	t.Run("支払元アドレスがある場合トランザクションが送信され結果が付加されること", func(t *testing.T) {
		t.Parallel()

		stub, srv := newProviderStub(t, map[string]route{
			ordersPath: {http.StatusOK, preparedOrder},
			txPath:     {http.StatusOK, `{"id":"tx-1","status":"pending"}`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		payload := []byte(`{"recipient":{"email":"a@example.com"},"payment":{"method":"polygon","payerAddress":"0xpayer"}}`)
		result, err := c.CreateOrder(context.Background(), payload)
		if err != nil {
			t.Fatalf("CreateOrder() error = %v", err)
		}

		tx, ok := result["paymentTransaction"].(map[string]any)
		if !ok || tx["id"] != "tx-1" {
			t.Errorf("paymentTransaction = %v", result["paymentTransaction"])
		}
		if _, ok := result["order"]; !ok {
			t.Error("注文のレスポンスがそのまま含まれるべき")
		}
		if stub.count(txPath) != 1 {
			t.Errorf("トランザクション送信回数 = %d, want 1", stub.count(txPath))
		}
		if stub.key() != "sk_test" {
			t.Errorf("X-API-KEY = %q", stub.key())
		}
		if string(stub.body(ordersPath)) != string(payload) {
			t.Errorf("注文のペイロードがそのまま転送されていない: %s", stub.body(ordersPath))
		}

		var sent struct {
			Params struct {
				Calls []map[string]string `json:"calls"`
				Chain string              `json:"chain"`
			} `json:"params"`
		}
		if err := json.Unmarshal(stub.body(txPath), &sent); err != nil {
			t.Fatalf("送信ボディのパースに失敗: %v", err)
		}
		if sent.Params.Chain != "base-sepolia" {
			t.Errorf("chain = %q, want base-sepolia", sent.Params.Chain)
		}
		if len(sent.Params.Calls) != 1 || sent.Params.Calls[0]["transaction"] != "0xdeadbeef" {
			t.Errorf("calls = %v", sent.Params.Calls)
		}
	})

	t.Run("支払元アドレスが無い場合トランザクションを送信しないこと", func(t *testing.T) {
		t.Parallel()

		stub, srv := newProviderStub(t, map[string]route{
			ordersPath: {http.StatusOK, preparedOrder},
			txPath:     {http.StatusOK, `{}`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		result, err := c.CreateOrder(context.Background(), []byte(`{"payment":{"method":"base-sepolia"}}`))
		if err != nil {
			t.Fatalf("CreateOrder() error = %v", err)
		}
		if _, ok := result["paymentTransaction"]; ok {
			t.Error("paymentTransactionが含まれるべきではない")
		}
		if stub.count(txPath) != 0 {
			t.Errorf("トランザクション送信回数 = %d, want 0", stub.count(txPath))
		}
	})

	t.Run("署名前トランザクションが無い場合トランザクションを送信しないこと", func(t *testing.T) {
		t.Parallel()

		stub, srv := newProviderStub(t, map[string]route{
			ordersPath: {http.StatusOK, `{"order":{"id":"order-1","payment":{"status":"awaiting-payment"}}}`},
			txPath:     {http.StatusOK, `{}`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		result, err := c.CreateOrder(context.Background(), []byte(`{"payment":{"payerAddress":"0xpayer"}}`))
		if err != nil {
			t.Fatalf("CreateOrder() error = %v", err)
		}
		if _, ok := result["paymentTransaction"]; ok {
			t.Error("paymentTransactionが含まれるべきではない")
		}
		if stub.count(txPath) != 0 {
			t.Errorf("トランザクション送信回数 = %d, want 0", stub.count(txPath))
		}
	})

	t.Run("チェーンが注文に無い場合リクエストの支払方法と既定値が順に使われること", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			payload string
			want    string
		}{
			{name: "支払方法", payload: `{"payment":{"method":"polygon-amoy","payerAddress":"0xpayer"}}`, want: "polygon-amoy"},
			{name: "既定値", payload: `{"payment":{"payerAddress":"0xpayer"}}`, want: "base-sepolia"},
		}
		for _, tt := range tests {
			stub, srv := newProviderStub(t, map[string]route{
				ordersPath: {http.StatusOK, `{"order":{"id":"o","payment":{"preparation":{"serializedTransaction":"0x01"}}}}`},
				txPath:     {http.StatusOK, `{}`},
			})
			c := NewClient(srv.URL, "sk_test", "base-sepolia")

			if _, err := c.CreateOrder(context.Background(), []byte(tt.payload)); err != nil {
				t.Fatalf("%s: CreateOrder() error = %v", tt.name, err)
			}
			var sent struct {
				Params struct {
					Chain string `json:"chain"`
				} `json:"params"`
			}
			_ = json.Unmarshal(stub.body(txPath), &sent)
			if sent.Params.Chain != tt.want {
				t.Errorf("%s: chain = %q, want %q", tt.name, sent.Params.Chain, tt.want)
			}
		}
	})

	t.Run("トランザクション送信に失敗した場合注文IDを含むupstream_errorが返ること", func(t *testing.T) {
		t.Parallel()

		_, srv := newProviderStub(t, map[string]route{
			ordersPath: {http.StatusOK, preparedOrder},
			txPath:     {http.StatusBadRequest, `{"message":"insufficient funds","internal":"trace-123"}`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		_, err := c.CreateOrder(context.Background(), []byte(`{"payment":{"payerAddress":"0xpayer"}}`))
		var appErr *apperror.Error
		if !errors.As(err, &appErr) {
			t.Fatalf("error = %v, want *apperror.Error", err)
		}
		if appErr.Kind != apperror.KindUpstream {
			t.Errorf("kind = %v, want %v", appErr.Kind, apperror.KindUpstream)
		}
		if appErr.Details["orderId"] != "order-1" {
			t.Errorf("orderId = %v, want order-1", appErr.Details["orderId"])
		}
		if appErr.Details["message"] != "insufficient funds" {
			t.Errorf("message = %v", appErr.Details["message"])
		}
		if _, leaked := appErr.Details["internal"]; leaked {
			t.Error("許可されていないフィールドが詳細に含まれている")
		}
	})

	t.Run("注文作成に失敗した場合upstream_errorが返りトランザクションを送信しないこと", func(t *testing.T) {
		t.Parallel()

		stub, srv := newProviderStub(t, map[string]route{
			ordersPath: {http.StatusUnprocessableEntity, `{"message":"invalid recipient"}`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		_, err := c.CreateOrder(context.Background(), []byte(`{"payment":{"payerAddress":"0xpayer"}}`))
		var appErr *apperror.Error
		if !errors.As(err, &appErr) {
			t.Fatalf("error = %v, want *apperror.Error", err)
		}
		if appErr.Kind != apperror.KindUpstream || appErr.Details["upstream_status"] != http.StatusUnprocessableEntity {
			t.Errorf("error = %+v", appErr)
		}
		if appErr.Details["message"] != "invalid recipient" {
			t.Errorf("message = %v", appErr.Details["message"])
		}
		if stub.count(txPath) != 0 {
			t.Errorf("トランザクション送信回数 = %d, want 0", stub.count(txPath))
		}
	})

	t.Run("オブジェクトでないレスポンスはdataに包まれること", func(t *testing.T) {
		t.Parallel()

		_, srv := newProviderStub(t, map[string]route{
			ordersPath: {http.StatusOK, `["a","b"]`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		result, err := c.CreateOrder(context.Background(), []byte(`{}`))
		if err != nil {
			t.Fatalf("CreateOrder() error = %v", err)
		}
		if data, ok := result["data"].([]any); !ok || len(data) != 2 {
			t.Errorf("result = %v", result)
		}
	})
}

// TestSafeJSON はsafeJSONを検証する。
func TestSafeJSON(t *testing.T) {
	t.Parallel()

	t.Run("JSONでないボディはrawに包まれること", func(t *testing.T) {
		t.Parallel()

		got := safeJSON([]byte("<html>bad gateway</html>"))
		if got["raw"] != "<html>bad gateway</html>" {
			t.Errorf("safeJSON() = %v", got)
		}
	})
}

// TestCreateWallet はClient.CreateWalletを検証する。
func TestCreateWallet(t *testing.T) {
	t.Parallel()

	t.Run("メールアドレスを管理者署名者としてウォレットが作成されること", func(t *testing.T) {
		t.Parallel()

		stub, srv := newProviderStub(t, map[string]route{
			walletsPath: {http.StatusCreated, `{"chainType":"evm","type":"smart","address":"0xwallet","config":{"adminSigner":{"type":"email","email":"a@example.com","locator":"email:a@example.com"}}}`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		w, err := c.CreateWallet(context.Background(), "a@example.com")
		if err != nil {
			t.Fatalf("CreateWallet() error = %v", err)
		}
		if w.Address != "0xwallet" || w.ChainType != "evm" || w.AdminSignerLocator != "email:a@example.com" {
			t.Errorf("wallet = %+v", w)
		}
		if w.Raw["address"] != "0xwallet" {
			t.Errorf("Raw = %v", w.Raw)
		}

		var sent map[string]any
		if err := json.Unmarshal(stub.body(walletsPath), &sent); err != nil {
			t.Fatalf("送信ボディのパースに失敗: %v", err)
		}
		if sent["owner"] != "email:a@example.com" || sent["chainType"] != "evm" || sent["type"] != "smart" {
			t.Errorf("body = %v", sent)
		}
	})

	t.Run("オブジェクトでないレスポンスは契約違反になること", func(t *testing.T) {
		t.Parallel()

		_, srv := newProviderStub(t, map[string]route{
			walletsPath: {http.StatusOK, `[]`},
		})
		c := NewClient(srv.URL, "sk_test", "base-sepolia")

		_, err := c.CreateWallet(context.Background(), "a@example.com")
		if apperror.KindOf(err) != apperror.KindUpstreamContractViolation {
			t.Errorf("kind = %v, want %v", apperror.KindOf(err), apperror.KindUpstreamContractViolation)
		}
	})
}
