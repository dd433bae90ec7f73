package userstore

import (
	"context"
	"errors"
)

// ErrNotFound はプロフィールが存在しないことを表す。
var ErrNotFound = errors.New("プロフィールが見つかりません")

// Profile はprofilesテーブルの1行を表す。未設定の列はnilとなる。
type Profile struct {
	ID                   string  `json:"id"`
	FullName             *string `json:"full_name"`
	AvatarURL            *string `json:"avatar_url"`
	WalletID             *string `json:"wallet_id"`
	WalletAddress        *string `json:"wallet_address"`
	WalletChainType      *string `json:"wallet_chain_type"`
	WalletChainID        *string `json:"wallet_chain_id"`
	WalletIndex          *int    `json:"wallet_index"`
	WalletClient         *string `json:"wallet_client"`
	WalletConnectorType  *string `json:"wallet_connector_type"`
	WalletRecoveryMethod *string `json:"wallet_recovery_method"`
	PrivyUserID          *string `json:"privy_user_id"`
	UpdatedAt            *string `json:"updated_at,omitempty"`
}

// HasWallet はウォレットが紐付け済みかどうかを返す。
func (p *Profile) HasWallet() bool {
	return p != nil && p.WalletID != nil && *p.WalletID != ""
}

// WalletChainTypeOrEmpty はチェーン種別を返す。未設定の場合は空文字列。
func (p *Profile) WalletChainTypeOrEmpty() string {
	if p == nil || p.WalletChainType == nil {
		return ""
	}
	return *p.WalletChainType
}

// ProfileUpdate はプロフィールの部分更新内容。nilのフィールドは既存の値を変更しない。
type ProfileUpdate struct {
	FullName             *string `json:"full_name,omitempty"`
	AvatarURL            *string `json:"avatar_url,omitempty"`
	WalletID             *string `json:"wallet_id,omitempty"`
	WalletAddress        *string `json:"wallet_address,omitempty"`
	WalletChainType      *string `json:"wallet_chain_type,omitempty"`
	WalletChainID        *string `json:"wallet_chain_id,omitempty"`
	WalletIndex          *int    `json:"wallet_index,omitempty"`
	WalletClient         *string `json:"wallet_client,omitempty"`
	WalletConnectorType  *string `json:"wallet_connector_type,omitempty"`
	WalletRecoveryMethod *string `json:"wallet_recovery_method,omitempty"`
	PrivyUserID          *string `json:"privy_user_id,omitempty"`
}

// profileRow はUpsert時に送信する行。IDとProfileUpdateを1つのJSONオブジェクトにまとめる。
type profileRow struct {
	ID string `json:"id"`
	ProfileUpdate
}

// CrossmintWallet はcrossmintテーブルの1行を表す。
type CrossmintWallet struct {
	ID                 string `json:"id"`
	ChainType          string `json:"chain_type,omitempty"`
	Type               string `json:"type,omitempty"`
	Address            string `json:"address,omitempty"`
	AdminSignerType    string `json:"adminSigner_type,omitempty"`
	AdminSignerEmail   string `json:"adminSigner_email,omitempty"`
	AdminSignerLocator string `json:"adminSigner_locator,omitempty"`
}

// Store はユーザーストアの操作を表す。
// tokenは利用者本人のアクセストークンで、ストアへの問い合わせの権限として使う。
type Store interface {
	// GetProfile はidのプロフィールを返す。存在しない場合はErrNotFoundを返す。
	GetProfile(ctx context.Context, token, id string) (*Profile, error)
	// UpsertProfile はidのプロフィールを作成または部分更新し、保存後の行を返す。
	UpsertProfile(ctx context.Context, token, id string, update ProfileUpdate) (*Profile, error)
	// UpsertCrossmintWallet は決済プロバイダーのウォレット情報を作成または更新する。
	UpsertCrossmintWallet(ctx context.Context, token string, w CrossmintWallet) error
}

// StringPtr は文字列のポインタを返す。空文字列の場合はnil。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
