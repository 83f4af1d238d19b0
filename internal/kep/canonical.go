package kep

import (
	"crypto/ecdh"
	"encoding/base64"

	"e2eecore/pkg/wire"
)

// CanonicalJWKBytes serializes a PublicJWK as the exact four-field byte
// string {kty,crv,x,y} in that fixed order with no whitespace — the byte
// string that is signed and verified for every ephemeral key in KEP
// (spec.md §4.4, §9). encoding/json is deliberately not used here: its
// field order is controlled by struct-tag iteration, which is stable within
// one compiled binary but is not a documented wire contract the way this
// hand-written layout is.
func CanonicalJWKBytes(jwk wire.PublicJWK) []byte {
	out := make([]byte, 0, 96)
	out = append(out, `{"kty":"`...)
	out = append(out, jwk.Kty...)
	out = append(out, `","crv":"`...)
	out = append(out, jwk.Crv...)
	out = append(out, `","x":"`...)
	out = append(out, jwk.X...)
	out = append(out, `","y":"`...)
	out = append(out, jwk.Y...)
	out = append(out, `"}`...)
	return out
}

// ToPublicJWK exports an ECDH P-256 public key as the closed four-field JWK.
func ToPublicJWK(pub *ecdh.PublicKey) wire.PublicJWK {
	raw := pub.Bytes() // uncompressed SEC1: 0x04 || X(32) || Y(32)
	x := raw[1:33]
	y := raw[33:65]
	return wire.PublicJWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}

// FromPublicJWK imports a closed four-field JWK back into an ECDH P-256
// public key, rejecting anything that is not exactly {EC, P-256} — an
// implicit curve-pinning check alongside crypto/ecdh's own.
func FromPublicJWK(jwk wire.PublicJWK) (*ecdh.PublicKey, error) {
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, errUnsupportedCurve
	}
	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, err
	}
	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, err
	}
	if len(x) != 32 || len(y) != 32 {
		return nil, errUnsupportedCurve
	}
	raw := make([]byte, 0, 65)
	raw = append(raw, 0x04)
	raw = append(raw, x...)
	raw = append(raw, y...)
	return ecdh.P256().NewPublicKey(raw)
}
