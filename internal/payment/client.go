package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/elara/pkg/apperror"
	"github.com/nao1215/elara/pkg/httpclient"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// requestTimeout は決済プロバイダーへの1リクエストあたりのタイムアウト。
const requestTimeout = 20 * time.Second

// APIのパス。
const (
	ordersPath  = "/api/2022-06-09/orders"
	walletsPath = "/api/2025-06-09/wallets"
)

// Client は決済プロバイダーのサーバーAPIクライアント。
type Client struct {
	client       *httpclient.Client
	defaultChain string
}

// NewClient はサーバーサイドAPIキーで認証するクライアントを生成する。
// defaultChainは注文からチェーンを決められない場合に使うチェーン名。
func NewClient(baseURL, apiKey, defaultChain string, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{
		httpclient.WithTimeout(requestTimeout),
		httpclient.WithHeader("X-API-KEY", apiKey),
	}, opts...)
	return &Client{
		client:       httpclient.New("payment", baseURL, opts...),
		defaultChain: defaultChain,
	}
}

// CreateOrder はpayloadをそのまま注文作成APIに転送する。
// 注文に署名前トランザクションが含まれ、かつリクエストに支払元アドレスがある場合は、
// そのトランザクションを支払元ウォレットから送信し、結果をpaymentTransactionとして付加する。
func (c *Client) CreateOrder(ctx context.Context, payload []byte) (map[string]any, error) {
	body, err := c.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    ordersPath,
		RawBody: payload,
	})
	if err != nil {
		zap.L().Warn("注文の作成に失敗しました", zap.Error(err), zap.String("response", responseBody(err)))
		return nil, upstreamError("payment.CreateOrder", "決済プロバイダーで注文の作成に失敗しました", err)
	}

	result := safeJSON(body)
	tx, err := c.submitPaymentTransaction(ctx, payload, body)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		result["paymentTransaction"] = tx
	}
	return result, nil
}

// submitPaymentTransaction は注文の署名前トランザクションを支払元ウォレットから送信する。
// 送信の条件を満たさない場合はnilを返す。
func (c *Client) submitPaymentTransaction(ctx context.Context, request, order []byte) (map[string]any, error) {
	payment := gjson.GetBytes(order, "order.payment")
	preparation := payment.Get("preparation")
	serialized := preparation.Get("serializedTransaction")
	if !serialized.Exists() || serialized.String() == "" {
		return nil, nil
	}

	payer := gjson.GetBytes(request, "payment.payerAddress").String()
	orderID := gjson.GetBytes(order, "order.id").String()
	if payer == "" {
		zap.L().Info("支払元アドレスが無いためトランザクションを送信しません", zap.String("order_id", orderID))
		return nil, nil
	}

	chain := firstNonEmpty(
		preparation.Get("chain").String(),
		payment.Get("chain").String(),
		gjson.GetBytes(request, "payment.method").String(),
		c.defaultChain,
	)

	txRequest := map[string]any{
		"params": map[string]any{
			"calls": []map[string]any{{"transaction": serialized.Value()}},
			"chain": chain,
		},
	}

	zap.L().Info("支払トランザクションを送信します", zap.String("order_id", orderID), zap.String("chain", chain))
	body, err := c.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/api/2022-06-09/wallets/" + url.PathEscape(payer) + "/transactions",
		Body:   txRequest,
	})
	if err != nil {
		zap.L().Error("注文は作成されましたが支払トランザクションの送信に失敗しました",
			zap.String("order_id", orderID),
			zap.Error(err),
			zap.String("response", responseBody(err)),
		)
		appErr := upstreamError("payment.SubmitTransaction", "注文は作成されましたが支払トランザクションの送信に失敗しました", err)
		appErr.WithDetail("orderId", orderID)
		return nil, appErr
	}

	zap.L().Info("支払トランザクションを送信しました", zap.String("order_id", orderID))
	return safeJSON(body), nil
}

// CustodialWallet は決済プロバイダーが作成したウォレット。
type CustodialWallet struct {
	// Raw はプロバイダーが返したウォレットオブジェクト。
	Raw                map[string]any
	ChainType          string
	Type               string
	Address            string
	AdminSignerType    string
	AdminSignerEmail   string
	AdminSignerLocator string
}

// CreateWallet はメールアドレスを管理者署名者とするスマートウォレットを作成する。
func (c *Client) CreateWallet(ctx context.Context, email string) (*CustodialWallet, error) {
	req := map[string]any{
		"chainType": "evm",
		"type":      "smart",
		"config": map[string]any{
			"adminSigner": map[string]any{
				"type":  "email",
				"email": email,
			},
		},
		"owner": "email:" + email,
	}

	body, err := c.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   walletsPath,
		Body:   req,
	})
	if err != nil {
		zap.L().Warn("決済ウォレットの作成に失敗しました", zap.Error(err), zap.String("response", responseBody(err)))
		return nil, upstreamError("payment.CreateWallet", "決済プロバイダーでウォレットの作成に失敗しました", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, apperror.New(apperror.KindUpstreamContractViolation, "payment.CreateWallet",
			"決済プロバイダーのウォレットのレスポンス形式が不正です").WithDetail("service", c.client.Service())
	}

	parsed := gjson.ParseBytes(body)
	signer := parsed.Get("config.adminSigner")
	return &CustodialWallet{
		Raw:                raw,
		ChainType:          parsed.Get("chainType").String(),
		Type:               parsed.Get("type").String(),
		Address:            parsed.Get("address").String(),
		AdminSignerType:    signer.Get("type").String(),
		AdminSignerEmail:   signer.Get("email").String(),
		AdminSignerLocator: signer.Get("locator").String(),
	}, nil
}

// upstreamError は決済プロバイダーのエラーを分類付きエラーに変換する。
// プロバイダーのエラーボディのうちmessageだけをクライアントに返す。
func upstreamError(op, message string, err error) *apperror.Error {
	var appErr *apperror.Error
	if !errors.As(apperror.Upstream(op, err), &appErr) {
		appErr = apperror.Wrap(apperror.KindInternal, op, message, err)
	}
	if appErr.Kind != apperror.KindInternal {
		appErr.Message = message
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		if msg := gjson.GetBytes(statusErr.Body, "message"); msg.Type == gjson.String && msg.String() != "" {
			appErr.WithDetail("message", msg.String())
		}
	}
	return appErr
}

// safeJSON はレスポンスボディをオブジェクトとして返す。
// オブジェクト以外のJSONは{"data": ...}、JSONでないボディは{"raw": ...}に包む。
func safeJSON(body []byte) map[string]any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return map[string]any{"raw": string(body)}
	}
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"data": v}
}

// responseBody はログ出力用に上流のレスポンスボディを取り出す。
func responseBody(err error) string {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return string(statusErr.Body)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
