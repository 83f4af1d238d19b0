package primitives

import (
	"crypto/ecdh"
	"crypto/rand"

	"e2eecore/internal/coreerr"
)

// ECDHKeyPair holds a P-256 ECDH key pair. Priv is never logged or returned
// to callers outside this package, internal/kep and internal/supervisor,
// which hold it only for the lifetime of a single exchange or rekey.
type ECDHKeyPair struct {
	Priv *ecdh.PrivateKey
	Pub  *ecdh.PublicKey
}

// ECDHKeygen generates a fresh P-256 ECDH key pair for one KEP exchange.
func ECDHKeygen() (ECDHKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return ECDHKeyPair{}, err
	}
	return ECDHKeyPair{Priv: priv, Pub: priv.PublicKey()}, nil
}

// ECDHDerive computes the raw shared secret for P-256 ECDH. Any curve other
// than P-256 is rejected by crypto/ecdh at parse time, satisfying spec.md
// §4.1's "any other curve is a protocol violation and must be rejected on
// import".
func ECDHDerive(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindSignature, err)
	}
	return secret, nil
}

// ECDHPublicFromBytes parses an uncompressed SEC1 P-256 public key.
func ECDHPublicFromBytes(b []byte) (*ecdh.PublicKey, error) {
	pub, err := ecdh.P256().NewPublicKey(b)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindSignature, err)
	}
	return pub, nil
}
