package auth

// Claims は検証済みトークンのペイロード。
// 検証時にデコードした内容をそのまま保持し、変更しない。
type Claims map[string]any

// Subject は認証済みユーザーの識別子（sub）を返す。
func (c Claims) Subject() string {
	return c.stringValue("sub")
}

// Email はユーザーのメールアドレスを返す。存在しない場合は空文字列。
func (c Claims) Email() string {
	return c.stringValue("email")
}

// Provider はapp_metadata.providerに格納されたログイン方法を返す。
func (c Claims) Provider() string {
	meta, ok := c["app_metadata"].(map[string]any)
	if !ok {
		return ""
	}
	provider, _ := meta["provider"].(string)
	return provider
}

func (c Claims) stringValue(key string) string {
	v, _ := c[key].(string)
	return v
}
