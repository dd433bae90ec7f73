// Package userstore はユーザーごとのプロフィールとウォレット紐付け情報を保存する。
//
// 本番ではSupabaseのPostgREST APIに利用者本人のトークンで問い合わせ、
// 行レベルセキュリティによって本人の行のみを読み書きする。
// ローカル開発用にSQLiteバックエンドも提供するが、こちらはアクセス制御を行わない。
package userstore
