package primitives

import (
	"bytes"
	"testing"
)

func TestAEADRoundTrip(t *testing.T) {
	key, err := RandomBytes(AEADKeySize)
	if err != nil {
		t.Fatalf("random key: %v", err)
	}
	plaintext := []byte("the quick brown fox")

	sealed, err := AEADSeal(key, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := AEADOpen(key, sealed.IV[:], sealed.Ciphertext, sealed.Tag[:])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestAEADOpenWrongKeyFailsLikeTamperedTag(t *testing.T) {
	key, _ := RandomBytes(AEADKeySize)
	other, _ := RandomBytes(AEADKeySize)
	sealed, err := AEADSeal(key, []byte("hello"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, errWrongKey := AEADOpen(other, sealed.IV[:], sealed.Ciphertext, sealed.Tag[:])
	if errWrongKey == nil {
		t.Fatal("expected failure decrypting under wrong key")
	}

	tag := append([]byte(nil), sealed.Tag[:]...)
	tag[0] ^= 0xFF
	_, errTamperedTag := AEADOpen(key, sealed.IV[:], sealed.Ciphertext, tag)
	if errTamperedTag == nil {
		t.Fatal("expected failure with tampered tag")
	}
}

func TestAEADSealProducesDistinctIVs(t *testing.T) {
	key, _ := RandomBytes(AEADKeySize)
	seen := map[[AEADNonceSize]byte]bool{}
	for i := 0; i < 500; i++ {
		sealed, err := AEADSeal(key, []byte("m"))
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if seen[sealed.IV] {
			t.Fatalf("IV repeated after %d seals", i)
		}
		seen[sealed.IV] = true
	}
}

func TestECDHSharedSecretSymmetric(t *testing.T) {
	a, err := ECDHKeygen()
	if err != nil {
		t.Fatalf("keygen a: %v", err)
	}
	b, err := ECDHKeygen()
	if err != nil {
		t.Fatalf("keygen b: %v", err)
	}

	sa, err := ECDHDerive(a.Priv, b.Pub)
	if err != nil {
		t.Fatalf("derive a: %v", err)
	}
	sb, err := ECDHDerive(b.Priv, a.Pub)
	if err != nil {
		t.Fatalf("derive b: %v", err)
	}
	if !bytes.Equal(sa, sb) {
		t.Fatal("ECDH shared secrets diverge")
	}
}

func TestECDSASignVerify(t *testing.T) {
	priv, err := ECDSAKeygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	msg := []byte(`{"kty":"EC","crv":"P-256","x":"...","y":"..."}`)
	sig, err := ECDSASign(priv, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !ECDSAVerify(&priv.PublicKey, sig, msg) {
		t.Fatal("expected signature to verify")
	}
	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 1
	if ECDSAVerify(&priv.PublicKey, sig, tampered) {
		t.Fatal("expected signature over tampered message to fail")
	}
}

func TestECDSADeterministicKeygenStable(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	k1, err := ECDSADeterministicKeygen(seed)
	if err != nil {
		t.Fatalf("keygen1: %v", err)
	}
	k2, err := ECDSADeterministicKeygen(seed)
	if err != nil {
		t.Fatalf("keygen2: %v", err)
	}
	if k1.D.Cmp(k2.D) != 0 {
		t.Fatal("deterministic keygen not stable across calls")
	}
}

func TestHKDFDeterministic(t *testing.T) {
	ikm := []byte("shared-secret")
	out1, err := HKDF(ikm, []byte("ROOT"), []byte("session-id"), 32)
	if err != nil {
		t.Fatalf("hkdf: %v", err)
	}
	out2, _ := HKDF(ikm, []byte("ROOT"), []byte("session-id"), 32)
	if !bytes.Equal(out1, out2) {
		t.Fatal("HKDF not deterministic for identical inputs")
	}
	out3, _ := HKDF(ikm, []byte("SEND"), []byte("session-id"), 32)
	if bytes.Equal(out1, out3) {
		t.Fatal("HKDF did not vary with salt")
	}
}

func TestPBKDF2Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, 16)
	k1 := PBKDF2([]byte("hunter2"), salt, MinPBKDF2Iterations)
	k2 := PBKDF2([]byte("hunter2"), salt, MinPBKDF2Iterations)
	if !bytes.Equal(k1, k2) {
		t.Fatal("PBKDF2 not deterministic")
	}
	if len(k1) != AEADKeySize {
		t.Fatalf("expected %d-byte KEK, got %d", AEADKeySize, len(k1))
	}
}
