// Package httpclient は外部サービスとのHTTP通信を行うクライアントを提供する。
//
// ユーザーストア、ウォレットプロバイダ、決済プロバイダの各アダプタが共通で使用する。
// 呼び出しごとの固定タイムアウト、JSONのシリアライズ、エラーの正規化
// （StatusError / UnavailableError / DecodeError）を担当し、リトライは行わない。
package httpclient
