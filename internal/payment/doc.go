// Package payment は決済プロバイダー（Crossmint）のサーバーAPIクライアントを提供する。
package payment
