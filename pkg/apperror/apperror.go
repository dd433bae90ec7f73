package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/elara/pkg/httpclient"
)

// Kind はエラーの分類。HTTPステータスとレスポンスのcodeを決定する。
type Kind int

const (
	// KindInternal は分類されていない内部エラー。
	KindInternal Kind = iota
	// KindUnauthorized はトークンが無い・不正・期限切れであることを表す。
	KindUnauthorized
	// KindServerMisconfigured は検証に必要な設定が欠けていることを表す。クライアントの誤りではない。
	KindServerMisconfigured
	// KindNotFound は対象のリソースが存在しないことを表す。
	KindNotFound
	// KindBadRequest はリクエストボディ等が不正であることを表す。
	KindBadRequest
	// KindUpstream は外部サービスが2xx以外を返したことを表す。
	KindUpstream
	// KindUpstreamUnavailable は外部サービスに到達できなかったことを表す。
	KindUpstreamUnavailable
	// KindUpstreamContractViolation は外部サービスは成功したがレスポンスの形式が想定外であることを表す。
	KindUpstreamContractViolation
	// KindWalletNotPersisted はウォレットは作成されたがプロフィールへの保存に失敗したことを表す。
	KindWalletNotPersisted
)

var kindCodes = map[Kind]string{
	KindInternal:                  "internal",
	KindUnauthorized:              "unauthorized",
	KindServerMisconfigured:       "server_misconfigured",
	KindNotFound:                  "not_found",
	KindBadRequest:                "bad_request",
	KindUpstream:                  "upstream_error",
	KindUpstreamUnavailable:       "upstream_unavailable",
	KindUpstreamContractViolation: "upstream_contract_violation",
	KindWalletNotPersisted:        "wallet_not_persisted",
}

// String はレスポンスのcodeとして使う文字列を返す。
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindInternal]
}

// HTTPStatus はKindに対応するHTTPステータスを返す。
// 外部サービスのステータスをそのまま返すことはしない。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindServerMisconfigured:
		return http.StatusInternalServerError
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstream, KindUpstreamUnavailable, KindUpstreamContractViolation, KindWalletNotPersisted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error はアプリケーション全体で使用する分類付きエラー。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Op はエラーが発生した操作（例: "wallet.CreateUser"）。ログの突き合わせに使う。
	Op string
	// Message はクライアントに返すメッセージ。内部情報を含めてはならない。
	Message string
	// Details はクライアントに返してよい追加情報。
	Details map[string]any
	// Err は原因となったエラー。クライアントには返さない。
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New は原因を持たないErrorを生成する。
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap は原因errを持つErrorを生成する。
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// WithDetail はクライアントに返す追加情報を設定したErrorを返す。
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Upstream は外部サービス呼び出しのエラーを分類付きエラーに変換する。
// opには呼び出した操作名を指定する。既に*Errorの場合はそのまま返す。
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return Wrap(KindUpstream, op, "外部サービスがエラーを返しました", err).
			WithDetail("service", statusErr.Service).
			WithDetail("upstream_status", statusErr.StatusCode)
	}

	var unavailable *httpclient.UnavailableError
	if errors.As(err, &unavailable) {
		return Wrap(KindUpstreamUnavailable, op, "外部サービスとの通信に失敗しました", err).
			WithDetail("service", unavailable.Service)
	}

	var decodeErr *httpclient.DecodeError
	if errors.As(err, &decodeErr) {
		return Wrap(KindUpstreamContractViolation, op, "外部サービスのレスポンス形式が不正です", err).
			WithDetail("service", decodeErr.Service)
	}

	return Wrap(KindInternal, op, "内部エラーが発生しました", err)
}

// KindOf はエラーの分類を返す。*Errorでない場合はKindInternal。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Body はクライアントに返すJSONボディを組み立てる。
func Body(err error) map[string]any {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return map[string]any{
			"error": "内部サーバーエラーが発生しました",
			"code":  KindInternal.String(),
		}
	}

	message := appErr.Message
	if message == "" {
		message = "内部サーバーエラーが発生しました"
	}
	body := map[string]any{
		"error": message,
		"code":  appErr.Kind.String(),
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return body
}
