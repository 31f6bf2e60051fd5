package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the HMAC of payload in constant time.
// Missing inputs never verify.
func Verify(payload []byte, signature, secret string) bool {
	if len(payload) == 0 || signature == "" || secret == "" {
		return false
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ClientPayload is what the checkout widget signs on redirect: order_id|payment_id.
func ClientPayload(orderID, paymentID string) []byte {
	if orderID == "" || paymentID == "" {
		return nil
	}
	return []byte(orderID + "|" + paymentID)
}

func VerifyClientSignature(orderID, paymentID, signature, secret string) bool {
	return Verify(ClientPayload(orderID, paymentID), signature, secret)
}
