package primitives

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"e2eecore/internal/coreerr"
)

// ECDSAKeygen generates a fresh P-256 identity key pair.
func ECDSAKeygen() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// ECDSADeterministicKeygen derives a P-256 private key deterministically
// from a 32-byte seed, for the recovery-phrase backup path in
// internal/identity. It uses the standard reduce-mod-(n-1)-then-add-1
// technique so the resulting scalar is always in [1, n-1].
func ECDSADeterministicKeygen(seed []byte) (*ecdsa.PrivateKey, error) {
	if len(seed) != 32 {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	curve := elliptic.P256()
	order := curve.Params().N
	nMinusOne := new(big.Int).Sub(order, big.NewInt(1))

	d := new(big.Int).SetBytes(seed)
	d.Mod(d, nMinusOne)
	d.Add(d, big.NewInt(1))

	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
	return priv, nil
}

// ECDSAFromScalar reconstructs a P-256 private key from its raw 32-byte
// scalar D, recomputing the public point. Used to reload an identity key
// whose D was sealed at rest — the handle never stores the encoded private
// key structure, only this minimal scalar.
func ECDSAFromScalar(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != 32 {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	curve := elliptic.P256()
	scalar := new(big.Int).SetBytes(d)
	if scalar.Sign() <= 0 || scalar.Cmp(curve.Params().N) >= 0 {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = scalar
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d)
	return priv, nil
}

// ECDSASign signs the canonical byte string (never the struct) with the P-256
// identity private key, hashing with SHA-256 first per ECDSA convention.
func ECDSASign(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ecdsa.SignASN1(rand.Reader, priv, digest[:])
}

// ECDSAVerify checks sig over message under pub. Any failure — malformed
// signature, wrong curve, mismatched digest — returns false; the caller maps
// this to coreerr.ErrSignature, never distinguishing the sub-cause.
func ECDSAVerify(pub *ecdsa.PublicKey, sig, message []byte) bool {
	if pub == nil || pub.Curve != elliptic.P256() {
		return false
	}
	digest := sha256.Sum256(message)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}
