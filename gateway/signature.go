package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" keyed by secret,
// the value Razorpay attaches to a checkout callback.
func Sign(orderID, paymentID, secret string) string {
	return hex.EncodeToString(mac(orderID, paymentID, secret))
}

// VerifySignature reports whether signature authenticates the (orderID, paymentID) pair.
// It fails closed: empty input, an empty secret or a non-hex signature are all "not verified".
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}
	claimed, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(mac(orderID, paymentID, secret), claimed)
}

func mac(orderID, paymentID, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(orderID + "|" + paymentID))
	return h.Sum(nil)
}
