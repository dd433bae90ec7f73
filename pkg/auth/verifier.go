package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/elara/pkg/apperror"
)

const opVerify = "auth.Verify"

// クライアントに返すメッセージ。ライブラリのエラー内容は含めない。
const (
	msgMalformed   = "トークンの形式が不正です"
	msgInvalid     = "トークンが無効です"
	msgExpired     = "トークンの有効期限が切れています"
	msgUnknownKey  = "トークンの署名鍵が見つかりません"
	msgUnsupported = "サポートされていない署名アルゴリズムです"
	msgNoSecret    = "共通鍵トークンの検証に必要なシークレットが設定されていません"
	msgNoJWKS      = "公開鍵トークンの検証に必要なJWKS URLが設定されていません"
)

// symmetricAlgs は共通鍵で署名されるアルゴリズム。
var symmetricAlgs = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
}

// asymmetricAlgs は公開鍵で検証するアルゴリズム。
var asymmetricAlgs = map[string]bool{
	"RS256": true, "RS384": true, "RS512": true,
	"PS256": true, "PS384": true, "PS512": true,
	"ES256": true, "ES384": true, "ES512": true,
	"EdDSA": true,
}

// Verifier はIDプロバイダが発行したBearerトークンを検証する。
// 共通鍵（HS系）と公開鍵（RS/PS/ES/EdDSA）の両方の署名方式に対応する。
type Verifier struct {
	// secret はHS系トークンの検証に使う共有シークレット。空の場合HS系は検証できない。
	secret []byte
	// keys は公開鍵トークンの検証に使うJWKSキャッシュ。nilの場合は公開鍵トークンを検証できない。
	keys *KeySetCache
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// VerifierOption はVerifierの生成オプション。
type VerifierOption func(*Verifier)

// WithClock は有効期限の判定に使う時計を差し替える。
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier は新しいVerifierを生成する。
// secretとkeysはどちらか一方だけでもよいが、設定されていない方式のトークンは
// ServerMisconfiguredとして拒否される。
func NewVerifier(secret string, keys *KeySetCache, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		keys:   keys,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 失敗時はapperror.KindUnauthorizedまたはapperror.KindServerMisconfiguredの*apperror.Errorを返す。
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUnauthorized, opVerify, msgMalformed, err)
	}
	alg, _ := unverified.Header["alg"].(string)

	var claims jwt.MapClaims
	switch {
	case symmetricAlgs[alg]:
		claims, err = v.verifySymmetric(token)
	case asymmetricAlgs[alg]:
		kid, _ := unverified.Header["kid"].(string)
		claims, err = v.verifyAsymmetric(ctx, token, kid)
	default:
		return nil, apperror.New(apperror.KindUnauthorized, opVerify, msgUnsupported)
	}
	if err != nil {
		return nil, err
	}

	// 署名検証の設定に依存せず、有効期限を独立して確認する。
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Time.Before(v.now()) {
		return nil, apperror.New(apperror.KindUnauthorized, opVerify, msgExpired)
	}

	return Claims(claims), nil
}

func (v *Verifier) verifySymmetric(token string) (jwt.MapClaims, error) {
	if len(v.secret) == 0 {
		return nil, apperror.New(apperror.KindServerMisconfigured, opVerify, msgNoSecret)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, v.signatureError(err)
	}
	return claims, nil
}

func (v *Verifier) verifyAsymmetric(ctx context.Context, token, kid string) (jwt.MapClaims, error) {
	if v.keys == nil {
		return nil, apperror.New(apperror.KindServerMisconfigured, opVerify, msgNoJWKS)
	}

	set, err := v.keys.Get(ctx)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUnauthorized, opVerify, msgInvalid, err)
	}
	key, ok := set.Lookup(kid)
	if !ok {
		return nil, apperror.New(apperror.KindUnauthorized, opVerify, msgUnknownKey)
	}
	// トークンが宣言するalgではなく、鍵が宣言するalgだけを許可する。
	if !asymmetricAlgs[key.Alg] {
		return nil, apperror.New(apperror.KindUnauthorized, opVerify, msgUnknownKey)
	}
	pub, err := key.PublicKey()
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUnauthorized, opVerify, msgUnknownKey, err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return pub, nil
	},
		jwt.WithValidMethods([]string{key.Alg}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, v.signatureError(err)
	}
	return claims, nil
}

func (v *Verifier) signatureError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperror.Wrap(apperror.KindUnauthorized, opVerify, msgExpired, err)
	}
	return apperror.Wrap(apperror.KindUnauthorized, opVerify, msgInvalid, err)
}
