package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultTimeout はタイムアウト未指定時の1リクエストあたりの上限時間。
const defaultTimeout = 30 * time.Second

// Observer は外部サービス呼び出しの結果を受け取るコールバック。
// statusは通信自体に失敗した場合に0となる。
type Observer func(service, method string, status int, elapsed time.Duration)

// Client は外部サービスとのHTTP通信を行うクライアント。
// 1つのClientは1つの接続先サービスに対応する。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// service はエラーやメトリクスに付与する接続先サービス名。
	service string
	// header は全リクエストに付与するヘッダー。
	header http.Header
	// observer は呼び出し結果の通知先。nilの場合は通知しない。
	observer Observer
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithTimeout は1リクエストあたりのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHeader は全リクエストに付与するヘッダーを追加する。
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithBasicAuth は全リクエストにBasic認証ヘッダーを付与する。
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		req := &http.Request{Header: http.Header{}}
		req.SetBasicAuth(username, password)
		c.header.Set("Authorization", req.Header.Get("Authorization"))
	}
}

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
// テストでTransportを差し替える用途を想定している。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithObserver は呼び出し結果の通知先を設定する。
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New は新しいHTTPクライアントを生成する。
// serviceには接続先の名前（例: "wallet"）、baseURLには接続先のベースURLを指定する。
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		service: service,
		header:  http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service は接続先サービス名を返す。
func (c *Client) Service() string {
	return c.service
}

// Request は1回のHTTP呼び出しの内容。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Path はベースURLからの相対パス。
	Path string
	// Query はクエリパラメータ。
	Query url.Values
	// Header はこのリクエストだけに付与するヘッダー。Clientのヘッダーより優先される。
	Header http.Header
	// Body はJSONにシリアライズして送信するボディ。
	Body any
	// RawBody はそのまま送信するJSONボディ。設定されている場合はBodyより優先される。
	RawBody []byte
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, Path: path}, result)
}

// DoJSON はリクエストを実行し、レスポンスボディをresultにデシリアライズする。
// resultがnilの場合はボディを読み捨てる。
func (c *Client) DoJSON(ctx context.Context, r Request, result any) error {
	body, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return &DecodeError{Service: c.service, Method: r.Method, Path: r.Path, Err: err}
	}
	return nil
}

// Do はリクエストを実行し、2xxの場合にレスポンスボディを返す。
// 2xx以外は*StatusError、通信失敗は*UnavailableErrorを返す。リトライは行わない。
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	var bodyReader io.Reader
	switch {
	case r.RawBody != nil:
		bodyReader = bytes.NewReader(r.RawBody)
	case r.Body != nil:
		jsonBody, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	for k, v := range r.Header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r.Method, 0, time.Since(start))
		return nil, &UnavailableError{Service: c.service, Method: r.Method, Path: r.Path, Err: err}
	}
	defer resp.Body.Close()
	c.observe(r.Method, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Service: c.service, Method: r.Method, Path: r.Path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Service:    c.service,
			Method:     r.Method,
			Path:       r.Path,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}
	return respBody, nil
}

func (c *Client) observe(method string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(c.service, method, status, elapsed)
	}
}
