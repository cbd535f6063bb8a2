package crypto

import "testing"

func TestAddressIsTwentyHexChars(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := priv.PublicKey().Address()
	if len(addr) != 20 {
		t.Fatalf("address length = %d, want 20", len(addr))
	}
	for _, c := range addr {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("address contains non-hex char %q", c)
		}
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	payload := []byte(`{"alice":10.0000,"bob":5.0000}`)
	sig, err := priv.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(priv.PublicKey(), payload, sig) {
		t.Fatal("signature failed to verify against the signing key")
	}
	if Verify(priv.PublicKey(), []byte("tampered"), sig) {
		t.Fatal("signature verified against a different payload")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv, _ := GenerateKey()
	other, _ := GenerateKey()
	payload := []byte(`{"x":1.0000}`)
	sig, _ := priv.Sign(payload)
	if Verify(other.PublicKey(), payload, sig) {
		t.Fatal("signature verified under the wrong public key")
	}
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	priv, _ := GenerateKey()
	pemStr, err := priv.PublicKey().EncodePEM()
	if err != nil {
		t.Fatalf("EncodePEM: %v", err)
	}
	decoded, err := DecodePublicKeyPEM(pemStr)
	if err != nil {
		t.Fatalf("DecodePublicKeyPEM: %v", err)
	}
	if decoded.Address() != priv.PublicKey().Address() {
		t.Fatal("round-tripped public key has a different address")
	}
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	priv, _ := GenerateKey()
	pemStr, err := priv.EncodePEM()
	if err != nil {
		t.Fatalf("EncodePEM: %v", err)
	}
	decoded, err := DecodePrivateKeyPEM(pemStr)
	if err != nil {
		t.Fatalf("DecodePrivateKeyPEM: %v", err)
	}
	if decoded.PublicKey().Address() != priv.PublicKey().Address() {
		t.Fatal("round-tripped private key derives a different address")
	}
}

func TestSignatureHexRoundTrip(t *testing.T) {
	priv, _ := GenerateKey()
	sig, _ := priv.Sign([]byte("payload"))
	parsed, err := SignatureFromHex(sig.Hex())
	if err != nil {
		t.Fatalf("SignatureFromHex: %v", err)
	}
	if parsed.R.Cmp(sig.R) != 0 || parsed.S.Cmp(sig.S) != 0 {
		t.Fatal("signature hex round-trip changed r/s")
	}
}
