package userstore

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/elara/pkg/apperror"
	"github.com/nao1215/elara/pkg/httpclient"
)

// postgrestTimeout はユーザーストアへの1リクエストあたりのタイムアウト。
const postgrestTimeout = 10 * time.Second

// PostgREST はSupabaseのPostgREST APIを使うStore実装。
// サービスキーは使わず、常に利用者本人のトークンで問い合わせる。
type PostgREST struct {
	client *httpclient.Client
}

var _ Store = (*PostgREST)(nil)

// NewPostgREST はPostgRESTクライアントを生成する。
// baseURLにはSupabaseプロジェクトのURL、anonKeyには匿名キーを指定する。
func NewPostgREST(baseURL, anonKey string, opts ...httpclient.Option) *PostgREST {
	opts = append([]httpclient.Option{
		httpclient.WithTimeout(postgrestTimeout),
		httpclient.WithHeader("apikey", anonKey),
	}, opts...)
	return &PostgREST{
		client: httpclient.New("userstore", baseURL+"/rest/v1", opts...),
	}
}

// userHeader は利用者本人のトークンを権限とするヘッダーを返す。
func userHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// GetProfile はidのプロフィールを取得する。
func (s *PostgREST) GetProfile(ctx context.Context, token, id string) (*Profile, error) {
	var rows []Profile
	err := s.client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/profiles",
		Query:  url.Values{"select": {"*"}, "id": {"eq." + id}},
		Header: userHeader(token),
	}, &rows)
	if err != nil {
		return nil, apperror.Upstream("userstore.GetProfile", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// UpsertProfile はidをキーにプロフィールを作成または部分更新する。
// 送信しなかった列は既存の値が維持される。
func (s *PostgREST) UpsertProfile(ctx context.Context, token, id string, update ProfileUpdate) (*Profile, error) {
	header := userHeader(token)
	header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	var rows []Profile
	err := s.client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/profiles",
		Query:  url.Values{"on_conflict": {"id"}},
		Header: header,
		Body:   profileRow{ID: id, ProfileUpdate: update},
	}, &rows)
	if err != nil {
		return nil, apperror.Upstream("userstore.UpsertProfile", err)
	}
	if len(rows) == 0 {
		return nil, apperror.New(apperror.KindUpstreamContractViolation, "userstore.UpsertProfile",
			"ユーザーストアが保存後の行を返しませんでした").WithDetail("service", s.client.Service())
	}
	return &rows[0], nil
}

// UpsertCrossmintWallet はcrossmintテーブルにウォレット情報を作成または更新する。
func (s *PostgREST) UpsertCrossmintWallet(ctx context.Context, token string, w CrossmintWallet) error {
	header := userHeader(token)
	header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	_, err := s.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/crossmint",
		Query:  url.Values{"on_conflict": {"id"}},
		Header: header,
		Body:   w,
	})
	if err != nil {
		return apperror.Upstream("userstore.UpsertCrossmintWallet", err)
	}
	return nil
}
