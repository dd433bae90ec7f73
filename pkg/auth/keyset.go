package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/elara/pkg/httpclient"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// jwksTimeout はJWKS取得1回あたりのタイムアウト。
const jwksTimeout = 5 * time.Second

// KeySetCache はJWKSを1件だけ保持するキャッシュ。
// 初回の非対称鍵トークン検証時に取得し、以降は自動更新しない。
// 鍵のローテーションを反映するにはInvalidateを呼ぶかプロセスを再起動する。
type KeySetCache struct {
	// url はJWKSの取得先URL。
	url string
	// client はJWKS取得用のHTTPクライアント。
	client *httpclient.Client
	// mu はsetを保護する。
	mu sync.RWMutex
	// set はキャッシュ済みの鍵集合。未取得の場合はnil。
	set *KeySet
	// group は同時に発生した初回取得を1回にまとめる。
	group singleflight.Group
}

// NewKeySetCache は新しいJWKSキャッシュを生成する。
func NewKeySetCache(url string, opts ...httpclient.Option) *KeySetCache {
	opts = append([]httpclient.Option{httpclient.WithTimeout(jwksTimeout)}, opts...)
	return &KeySetCache{
		url:    url,
		client: httpclient.New("identity", url, opts...),
	}
}

// Get はキャッシュ済みの鍵集合を返す。未取得の場合は取得してキャッシュする。
func (c *KeySetCache) Get(ctx context.Context) (*KeySet, error) {
	c.mu.RLock()
	set := c.set
	c.mu.RUnlock()
	if set != nil {
		return set, nil
	}

	// 初回取得は同じフライトを待つ全員で共有するため、呼び出し元のキャンセルを引き継がない。
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do("jwks", func() (any, error) {
		c.mu.RLock()
		cached := c.set
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		var fetched KeySet
		if err := c.client.GetJSON(fetchCtx, "", &fetched); err != nil {
			return nil, fmt.Errorf("JWKSの取得に失敗: %w", err)
		}
		if len(fetched.Keys) == 0 {
			return nil, errors.New("JWKSに鍵が含まれていません")
		}

		c.mu.Lock()
		c.set = &fetched
		c.mu.Unlock()

		zap.L().Info("JWKSを取得しました", zap.String("url", c.url), zap.Int("keys", len(fetched.Keys)))
		return &fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*KeySet), nil
}

// Invalidate はキャッシュ済みの鍵集合を破棄する。次回のGetで再取得される。
func (c *KeySetCache) Invalidate() {
	c.mu.Lock()
	c.set = nil
	c.mu.Unlock()
}
