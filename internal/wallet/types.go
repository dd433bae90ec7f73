package wallet

import "github.com/shopspring/decimal"

// accountTypeWallet はウォレットを表すリンク済みアカウントの種別。
const accountTypeWallet = "wallet"

// LinkedAccount はプロバイダー側ユーザーに紐付くアカウント。
type LinkedAccount struct {
	Type           string `json:"type"`
	ID             string `json:"id,omitempty"`
	Address        string `json:"address,omitempty"`
	ChainType      string `json:"chain_type,omitempty"`
	ChainID        string `json:"chain_id,omitempty"`
	WalletIndex    *int   `json:"wallet_index,omitempty"`
	WalletClient   string `json:"wallet_client,omitempty"`
	ConnectorType  string `json:"connector_type,omitempty"`
	RecoveryMethod string `json:"recovery_method,omitempty"`
	CustomUserID   string `json:"custom_user_id,omitempty"`
}

// User はプロバイダー側のユーザー。
type User struct {
	ID             string          `json:"id"`
	LinkedAccounts []LinkedAccount `json:"linked_accounts"`
}

// Wallet は利用者のプライマリウォレット。
type Wallet struct {
	Address        string `json:"address"`
	WalletID       string `json:"wallet_id"`
	ChainType      string `json:"chain_type,omitempty"`
	ChainID        string `json:"chain_id,omitempty"`
	WalletIndex    *int   `json:"wallet_index,omitempty"`
	WalletClient   string `json:"wallet_client,omitempty"`
	ConnectorType  string `json:"connector_type,omitempty"`
	RecoveryMethod string `json:"recovery_method,omitempty"`
}

// PrimaryWallet はユーザーのリンク済みアカウントから最初のウォレットを取り出す。
// IDとアドレスの両方を持つウォレット種別のアカウントが無い場合はfalseを返す。
func PrimaryWallet(u *User) (Wallet, bool) {
	if u == nil {
		return Wallet{}, false
	}
	for _, acc := range u.LinkedAccounts {
		if acc.Type != accountTypeWallet || acc.ID == "" || acc.Address == "" {
			continue
		}
		return Wallet{
			Address:        acc.Address,
			WalletID:       acc.ID,
			ChainType:      acc.ChainType,
			ChainID:        acc.ChainID,
			WalletIndex:    acc.WalletIndex,
			WalletClient:   acc.WalletClient,
			ConnectorType:  acc.ConnectorType,
			RecoveryMethod: acc.RecoveryMethod,
		}, true
	}
	return Wallet{}, false
}

// Balance は1つのチェーン・資産の残高。
type Balance struct {
	Chain    string          `json:"chain"`
	Asset    string          `json:"asset"`
	USD      decimal.Decimal `json:"usd"`
	RawValue string          `json:"raw_value"`
	Decimals int             `json:"decimals"`
}

// Snapshot はウォレット残高の一覧と米ドル換算の合計。
type Snapshot struct {
	Balances []Balance       `json:"balances"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

// BalanceFilter は残高取得時に問い合わせるチェーンと資産。
type BalanceFilter struct {
	Chains []string `yaml:"chains"`
	Assets []string `yaml:"assets"`
}
