package payments

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/vietcart/api/internal/platform/config"
)

func vnpayTestConfig() config.VNPayConfig {
	return config.VNPayConfig{
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		TmnCode:    "VIETCART1",
		HashSecret: "hash-secret",
		ReturnURL:  "https://shop.example.com/payment/return",
	}
}

func TestVNPayCreatePayment(t *testing.T) {
	fixed := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	provider, err := NewVNPayProvider(VNPayProviderConfig{
		Config: vnpayTestConfig(),
		Clock:  func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	intent, err := provider.CreatePayment(context.Background(), CreatePaymentRequest{
		PaymentID: "payment-1",
		Amount:    350_000,
		OrderInfo: "Đơn hàng VC-2026-000001",
		ClientIP:  "203.113.1.1",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if intent.Gateway != "vnpay" {
		t.Fatalf("expected vnpay gateway, got %q", intent.Gateway)
	}
	if !strings.HasPrefix(intent.RedirectURL, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?") {
		t.Fatalf("unexpected redirect url %q", intent.RedirectURL)
	}

	parsed, err := url.Parse(intent.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect url: %v", err)
	}
	query := parsed.Query()
	if query.Get("vnp_Amount") != "35000000" {
		t.Fatalf("expected amount x100, got %q", query.Get("vnp_Amount"))
	}
	if query.Get("vnp_TxnRef") != "payment-1" {
		t.Fatalf("expected txn ref payment-1, got %q", query.Get("vnp_TxnRef"))
	}
	if query.Get("vnp_CreateDate") != "20260831103000" {
		t.Fatalf("unexpected create date %q", query.Get("vnp_CreateDate"))
	}
	if query.Get("vnp_SecureHash") == "" {
		t.Fatalf("expected secure hash on redirect url")
	}

	// The redirect's own parameters must verify.
	params := make(map[string]string, len(query))
	for key := range query {
		params[key] = query.Get(key)
	}
	params["vnp_ResponseCode"] = "00"
	delete(params, "vnp_SecureHash")
	params["vnp_SecureHash"] = signHMACSHA512("hash-secret", encodeSortedQuery(withoutHashFields(params)))

	result, err := provider.VerifyCallback(params)
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success for response code 00")
	}
	if result.PaymentID != "payment-1" {
		t.Fatalf("expected payment-1, got %q", result.PaymentID)
	}
}

func TestVNPayVerifyCallbackTampered(t *testing.T) {
	provider, err := NewVNPayProvider(VNPayProviderConfig{Config: vnpayTestConfig()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	params := map[string]string{
		"vnp_TmnCode":       "VIETCART1",
		"vnp_TxnRef":        "payment-9",
		"vnp_Amount":        "10000000",
		"vnp_ResponseCode":  "00",
		"vnp_TransactionNo": "14873452",
	}
	params["vnp_SecureHash"] = signHMACSHA512("hash-secret", encodeSortedQuery(withoutHashFields(params)))

	// Flip the amount after signing.
	params["vnp_Amount"] = "99900000"
	if _, err := provider.VerifyCallback(params); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	// Missing hash entirely.
	delete(params, "vnp_SecureHash")
	if _, err := provider.VerifyCallback(params); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for missing hash, got %v", err)
	}
}

func TestVNPayVerifyCallbackFailedPayment(t *testing.T) {
	provider, err := NewVNPayProvider(VNPayProviderConfig{Config: vnpayTestConfig()})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	params := map[string]string{
		"vnp_TmnCode":       "VIETCART1",
		"vnp_TxnRef":        "payment-3",
		"vnp_Amount":        "18000000",
		"vnp_ResponseCode":  "24",
		"vnp_TransactionNo": "0",
	}
	params["vnp_SecureHash"] = signHMACSHA512("hash-secret", encodeSortedQuery(withoutHashFields(params)))

	result, err := provider.VerifyCallback(params)
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failed verdict for response code 24")
	}
	if result.TransactionRef != "0" {
		t.Fatalf("unexpected transaction ref %q", result.TransactionRef)
	}
}

func withoutHashFields(params map[string]string) map[string]string {
	signed := make(map[string]string, len(params))
	for key, value := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		signed[key] = value
	}
	return signed
}
