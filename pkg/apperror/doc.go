// Package apperror はAPIが返すエラーの分類を提供する。
//
// 各Kindは1つのHTTPステータスとレスポンスのcodeに対応する。
// 原因となったエラーや外部サービスのレスポンスボディはログにのみ出力し、
// クライアントにはMessageとDetailsだけを返す。
package apperror
