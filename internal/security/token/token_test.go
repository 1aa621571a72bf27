package token

import "testing"

func TestHashSHA256Hex_Stable(t *testing.T) {
	a := HashSHA256Hex("bearer-token")
	b := HashSHA256Hex("bearer-token")
	if a != b {
		t.Fatalf("digest not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestHashBearerTokenHex_HMACWhenKeySet(t *testing.T) {
	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")

	hmacDigest := HashBearerTokenHex("bearer-token")
	plain := HashSHA256Hex("bearer-token")
	if hmacDigest == plain {
		t.Fatalf("expected HMAC digest to differ from plain SHA-256")
	}
}

func TestHashBearerTokenHex_FallbackWithoutKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "")

	if got := HashBearerTokenHex("bearer-token"); got != HashSHA256Hex("bearer-token") {
		t.Fatalf("expected SHA-256 fallback")
	}
}

func TestHMACKeyFromEnv_Policy(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
}
