// Package payment adapts the external payment gateway: order creation and
// signature verification of completed payments.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// OrderRequest is what the gateway needs to open an order.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the gateway's view of an opened order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway is implemented by payment providers.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// VerifySignature reports whether signature authenticates the (orderID, paymentID) pair.
	VerifySignature(orderID, paymentID, signature string) bool
	// KeyID is the public key handed to checkout clients.
	KeyID() string
}

// Signature returns the hex HMAC-SHA256 of "orderID|paymentID" keyed by secret.
func Signature(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Signature(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
