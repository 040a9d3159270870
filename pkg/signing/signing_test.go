package signing

import (
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key := []byte("secret-key-id-material")
	now := time.Unix(1_700_000_000, 0)
	sig := Sign(key, "POST", now.Unix())

	if err := Verify(key, "POST", now.Unix(), now, sig); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	key := []byte("k")
	now := time.Unix(1_700_000_000, 0)
	old := now.Add(-700 * time.Second)
	sig := Sign(key, "GET", old.Unix())

	if err := Verify(key, "GET", old.Unix(), now, sig); err == nil {
		t.Fatal("expected stale timestamp to be rejected")
	}
}

func TestVerifyRejectsWrongSignature(t *testing.T) {
	key := []byte("k")
	now := time.Unix(1_700_000_000, 0)

	if err := Verify(key, "GET", now.Unix(), now, "deadbeef"); err == nil {
		t.Fatal("expected mismatched signature to be rejected")
	}
}

func TestVerifyRejectsDifferentKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sig := Sign([]byte("key-a"), "DELETE", now.Unix())

	if err := Verify([]byte("key-b"), "DELETE", now.Unix(), now, sig); err == nil {
		t.Fatal("expected signature under a different key to be rejected")
	}
}
