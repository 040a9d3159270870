// Package signing implements the gateway's client request authentication
// scheme, per spec §6: HMAC-SHA256 over a canonical string of the HTTP
// method and a Unix timestamp, with a staleness window.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// MaxClockSkew is the maximum age (in either direction) a request
// timestamp may have before it is rejected, per spec §6.
const MaxClockSkew = 600 * time.Second

// StringToSign builds the canonical string signed by the client:
// METHOD + "\n" + timestamp.
func StringToSign(method string, timestamp int64) string {
	return method + "\n" + strconv.FormatInt(timestamp, 10)
}

// Sign computes the lowercase-hex HMAC-SHA256 signature of method and
// timestamp under key.
func Sign(key []byte, method string, timestamp int64) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(StringToSign(method, timestamp)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a client-supplied hex signature against the expected
// HMAC for (method, timestamp) under key, and that timestamp is within
// MaxClockSkew of now. It returns nil on success or a descriptive error
// otherwise; callers map any non-nil error to AuthFailure.
func Verify(key []byte, method string, timestamp int64, now time.Time, signatureHex string) error {
	age := now.Unix() - timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > MaxClockSkew {
		return fmt.Errorf("signing: timestamp %d outside %s clock skew window", timestamp, MaxClockSkew)
	}

	want := Sign(key, method, timestamp)
	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("signing: malformed signature: %w", err)
	}
	wantBytes, _ := hex.DecodeString(want)

	if subtle.ConstantTimeCompare(got, wantBytes) != 1 {
		return fmt.Errorf("signing: signature mismatch")
	}
	return nil
}
