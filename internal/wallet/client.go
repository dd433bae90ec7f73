package wallet

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/elara/pkg/apperror"
	"github.com/nao1215/elara/pkg/httpclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// requestTimeout はウォレットプロバイダーへの1リクエストあたりのタイムアウト。
const requestTimeout = 10 * time.Second

// Client はウォレットプロバイダーのサーバーAPIクライアント。
type Client struct {
	client *httpclient.Client
}

// NewClient はアプリIDとシークレットで認証するクライアントを生成する。
func NewClient(baseURL, appID, appSecret string, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{
		httpclient.WithTimeout(requestTimeout),
		httpclient.WithBasicAuth(appID, appSecret),
		httpclient.WithHeader("privy-app-id", appID),
	}, opts...)
	return &Client{client: httpclient.New("wallet", baseURL, opts...)}
}

type createUserRequest struct {
	LinkedAccounts []LinkedAccount `json:"linked_accounts"`
	Wallets        []walletSpec    `json:"wallets"`
}

type walletSpec struct {
	ChainType string `json:"chain_type"`
}

// CreateUser はsubjectをカスタム認証IDとするユーザーを作成し、
// chainTypeのエンベデッドウォレットを同時に作成させる。
func (c *Client) CreateUser(ctx context.Context, subject, chainType string) (*User, error) {
	req := createUserRequest{
		LinkedAccounts: []LinkedAccount{{Type: "custom_auth", CustomUserID: subject}},
		Wallets:        []walletSpec{{ChainType: chainType}},
	}

	var user User
	if err := c.client.PostJSON(ctx, "/v1/users", req, &user); err != nil {
		zap.L().Warn("ウォレットプロバイダーのユーザー作成に失敗しました",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return nil, apperror.Upstream("wallet.CreateUser", err)
	}
	return &user, nil
}

type balanceResponse struct {
	Balances []struct {
		Chain         string `json:"chain"`
		Asset         string `json:"asset"`
		RawValue      string `json:"raw_value"`
		Decimals      int    `json:"raw_value_decimals"`
		DisplayValues struct {
			USD decimal.NullDecimal `json:"usd"`
		} `json:"display_values"`
	} `json:"balances"`
}

// GetBalance はウォレットの残高を取得し、米ドル換算の合計を求める。
// 米ドル換算値が無い残高は合計に含めない。
func (c *Client) GetBalance(ctx context.Context, walletID string, filter BalanceFilter) (*Snapshot, error) {
	query := url.Values{}
	for _, chain := range filter.Chains {
		query.Add("chain", chain)
	}
	for _, asset := range filter.Assets {
		query.Add("asset", asset)
	}

	var resp balanceResponse
	err := c.client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/v1/wallets/" + url.PathEscape(walletID) + "/balance",
		Query:  query,
	}, &resp)
	if err != nil {
		return nil, apperror.Upstream("wallet.GetBalance", err)
	}

	snapshot := &Snapshot{
		Balances: make([]Balance, 0, len(resp.Balances)),
		TotalUSD: decimal.Zero,
	}
	for _, b := range resp.Balances {
		usd := decimal.Zero
		if b.DisplayValues.USD.Valid {
			usd = b.DisplayValues.USD.Decimal
		}
		snapshot.Balances = append(snapshot.Balances, Balance{
			Chain:    b.Chain,
			Asset:    b.Asset,
			USD:      usd,
			RawValue: b.RawValue,
			Decimals: b.Decimals,
		})
		snapshot.TotalUSD = snapshot.TotalUSD.Add(usd)
	}
	return snapshot, nil
}
