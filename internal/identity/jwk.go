package identity

import (
	"crypto/ecdsa"
	"encoding/base64"

	"e2eecore/internal/primitives"
	"e2eecore/pkg/wire"
)

// publicJWKFromPrivate exports the public half of priv as the closed
// four-field {kty,crv,x,y} JWK spec.md §4.2 requires — no d, key_ops, alg,
// or ext.
func publicJWKFromPrivate(priv *ecdsa.PrivateKey) wire.PublicJWK {
	x := priv.PublicKey.X.FillBytes(make([]byte, 32))
	y := priv.PublicKey.Y.FillBytes(make([]byte, 32))
	return wire.PublicJWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}

// importScalarD reconstructs the private key from its raw 32-byte
// scalar, as sealed by (*IdentityStore).seal.
func importScalarD(d []byte) (*ecdsa.PrivateKey, error) {
	return primitives.ECDSAFromScalar(d)
}
