// Package bff はモバイル/Webクライアント向けのBackend for Frontendを提供する。
//
// クライアントのBearerトークンを検証したうえで、ユーザーストア、ウォレットプロバイダー、
// 決済プロバイダーへの呼び出しを組み合わせてレスポンスを組み立てる。
// 外部サービスの秘密情報はこのサービスだけが保持し、クライアントには渡さない。
package bff
