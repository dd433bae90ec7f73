// Package wallet はウォレットプロバイダー（Privy）のサーバーAPIクライアントを提供する。
//
// 利用者に紐付くプロバイダー側ユーザーとエンベデッドウォレットの作成、
// およびウォレット残高の取得と米ドル換算の合計を扱う。
package wallet
