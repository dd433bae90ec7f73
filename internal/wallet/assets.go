package wallet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// defaultChainType は未知のチェーン種別の代わりに使うチェーン種別。
const defaultChainType = "ethereum"

// AssetTable はチェーン種別ごとの残高問い合わせ対象を保持する。
type AssetTable struct {
	ChainTypes map[string]BalanceFilter `yaml:"chain_types"`
}

// DefaultAssetTable は設定ファイルが無い場合に使う組み込みの問い合わせ対象を返す。
func DefaultAssetTable() *AssetTable {
	return &AssetTable{
		ChainTypes: map[string]BalanceFilter{
			"ethereum": {Chains: []string{"base", "ethereum"}, Assets: []string{"usdc", "eth"}},
			"solana":   {Chains: []string{"solana"}, Assets: []string{"usdc", "sol"}},
		},
	}
}

// LoadAssetTable はYAMLファイルから問い合わせ対象を読み込む。
// pathが空の場合は組み込みの表を返す。
func LoadAssetTable(path string) (*AssetTable, error) {
	if path == "" {
		return DefaultAssetTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%sの読み込みに失敗: %w", path, err)
	}

	var table AssetTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%sのパースに失敗: %w", path, err)
	}

	if _, ok := table.ChainTypes[defaultChainType]; !ok {
		return nil, fmt.Errorf("%sに%sの定義がありません", path, defaultChainType)
	}
	for name, f := range table.ChainTypes {
		if len(f.Chains) == 0 {
			return nil, fmt.Errorf("チェーン種別 %s にchainsがありません", name)
		}
		if len(f.Assets) == 0 {
			return nil, fmt.Errorf("チェーン種別 %s にassetsがありません", name)
		}
	}
	return &table, nil
}

// FilterFor はチェーン種別に対応する問い合わせ対象を返す。
// 未知または空のチェーン種別にはethereumの定義を使う。
func (t *AssetTable) FilterFor(chainType string) BalanceFilter {
	if f, ok := t.ChainTypes[chainType]; ok {
		return f
	}
	return t.ChainTypes[defaultChainType]
}
