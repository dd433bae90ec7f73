package httpclient

import "fmt"

// StatusError は接続先サービスが2xx以外のステータスを返したことを表す。
type StatusError struct {
	// Service は接続先サービス名。
	Service string
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// StatusCode は接続先が返したHTTPステータス。
	StatusCode int
	// Body は接続先が返したレスポンスボディ。ログ用であり、クライアントには返さない。
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %s がステータス %d を返しました: %s", e.Service, e.Method, e.Path, e.StatusCode, truncate(e.Body, 512))
}

// UnavailableError は接続先サービスとの通信自体に失敗したことを表す。
// タイムアウトや接続拒否が該当する。
type UnavailableError struct {
	Service string
	Method  string
	Path    string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s %s の通信に失敗: %v", e.Service, e.Method, e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// DecodeError は2xxのレスポンスが期待した形式でなかったことを表す。
type DecodeError struct {
	Service string
	Method  string
	Path    string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s %s のレスポンスのデシリアライズに失敗: %v", e.Service, e.Method, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
