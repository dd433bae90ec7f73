package auth

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/MicahParks/jwkset"
)

// JWK はJWKSに含まれる1つの公開鍵。
// RSA・EC・OKP(Ed25519)の公開鍵だけを扱う。
type JWK struct {
	// Kid は鍵ID。トークンヘッダーのkidと照合する。
	Kid string `json:"kid"`
	// Kty は鍵の種類（RSA / EC / OKP）。
	Kty string `json:"kty"`
	// Alg は鍵が宣言している署名アルゴリズム。検証はこの値だけを許可する。
	Alg string `json:"alg"`
	// Use は鍵の用途（sig）。
	Use string `json:"use,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// KeySet はIDプロバイダが公開する署名鍵の集合。
type KeySet struct {
	Keys []JWK `json:"keys"`
}

// Lookup はkidに一致する鍵を返す。
func (s *KeySet) Lookup(kid string) (JWK, bool) {
	if s == nil || kid == "" {
		return JWK{}, false
	}
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}

// PublicKey はJWKをgolang-jwtが検証に使う公開鍵に変換する。
// 鍵素材の解釈はjwksetに任せ、ここでは公開鍵の種類だけを受け付ける。
func (k JWK) PublicKey() (any, error) {
	switch k.Kty {
	case "RSA", "EC", "OKP":
	default:
		return nil, fmt.Errorf("サポートされていない鍵の種類: %q", k.Kty)
	}

	parsed, err := jwkset.NewJWKFromMarshal(jwkset.JWKMarshal{
		KTY: jwkset.KTY(k.Kty),
		USE: jwkset.USE(k.Use),
		ALG: jwkset.ALG(k.Alg),
		KID: k.Kid,
		CRV: jwkset.CRV(k.Crv),
		N:   k.N,
		E:   k.E,
		X:   k.X,
		Y:   k.Y,
	}, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
	if err != nil {
		return nil, fmt.Errorf("JWKの解析に失敗: %w", err)
	}

	switch pub := parsed.Key().(type) {
	case *rsa.PublicKey:
		if pub.N == nil || pub.N.Sign() <= 0 {
			return nil, errors.New("RSA鍵のnが不正です")
		}
		return pub, nil
	case *ecdsa.PublicKey:
		if _, err := pub.ECDH(); err != nil {
			return nil, fmt.Errorf("EC鍵の座標が不正です: %w", err)
		}
		return pub, nil
	case ed25519.PublicKey:
		if len(pub) != ed25519.PublicKeySize {
			return nil, errors.New("Ed25519鍵の長さが不正です")
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("公開鍵ではない鍵です: %T", pub)
	}
}
