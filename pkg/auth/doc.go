// Package auth はIDプロバイダが発行したBearerトークンの検証を提供する。
//
// トークンヘッダーのalgを見て、共通鍵（HS系）なら共有シークレットで、
// 公開鍵（RS/PS/ES/EdDSA）ならJWKSから取得した鍵で署名を検証する。
// 署名検証の後に有効期限を独立して確認し、どの失敗もUnauthorizedに正規化する。
// 検証方式に必要な設定が欠けている場合だけはServerMisconfiguredを返す。
package auth
