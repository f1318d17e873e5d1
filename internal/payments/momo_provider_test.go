package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietcart/api/internal/platform/config"
)

func momoTestConfig(endpoint string) config.MoMoConfig {
	return config.MoMoConfig{
		Endpoint:    endpoint,
		PartnerCode: "VIETCART",
		AccessKey:   "access-key",
		SecretKey:   "secret-key",
		ReturnURL:   "https://shop.example.com/payment/return",
		NotifyURL:   "https://api.example.com/webhooks/momo",
	}
}

func TestMoMoCreatePayment(t *testing.T) {
	var received momoCreateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(momoCreateResponse{
			ResultCode: 0,
			Message:    "Success",
			PayURL:     "https://test-payment.momo.vn/pay/abc123",
			RequestID:  received.RequestID,
			OrderID:    received.OrderID,
		})
	}))
	defer server.Close()

	provider, err := NewMoMoProvider(MoMoProviderConfig{Config: momoTestConfig(server.URL)})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	intent, err := provider.CreatePayment(context.Background(), CreatePaymentRequest{
		PaymentID: "payment-1",
		Amount:    350_000,
		OrderInfo: "Đơn hàng VC-2026-000001",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if intent.RedirectURL != "https://test-payment.momo.vn/pay/abc123" {
		t.Fatalf("unexpected redirect url %q", intent.RedirectURL)
	}
	if intent.Gateway != "momo" {
		t.Fatalf("expected momo gateway, got %q", intent.Gateway)
	}

	if received.OrderID != "payment-1" || received.Amount != 350_000 {
		t.Fatalf("unexpected request payload: %+v", received)
	}
	if received.RequestType != "captureWallet" {
		t.Fatalf("expected captureWallet request type, got %q", received.RequestType)
	}
	expectedSig := provider.signCreate(momoCreateRequest{
		PartnerCode: received.PartnerCode,
		AccessKey:   received.AccessKey,
		RequestID:   received.RequestID,
		Amount:      received.Amount,
		OrderID:     received.OrderID,
		OrderInfo:   received.OrderInfo,
		RedirectURL: received.RedirectURL,
		IpnURL:      received.IpnURL,
		ExtraData:   received.ExtraData,
		RequestType: received.RequestType,
	})
	if received.Signature != expectedSig {
		t.Fatalf("request signature mismatch")
	}
}

func TestMoMoCreatePaymentRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(momoCreateResponse{ResultCode: 41, Message: "Duplicate orderId"})
	}))
	defer server.Close()

	provider, err := NewMoMoProvider(MoMoProviderConfig{Config: momoTestConfig(server.URL)})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.CreatePayment(context.Background(), CreatePaymentRequest{
		PaymentID: "payment-dup",
		Amount:    100_000,
	})
	if err == nil {
		t.Fatalf("expected rejection error")
	}
}

func TestMoMoVerifyCallback(t *testing.T) {
	provider, err := NewMoMoProvider(MoMoProviderConfig{Config: momoTestConfig("https://test-payment.momo.vn/v2/gateway/api/create")})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	params := map[string]string{
		"partnerCode":  "VIETCART",
		"orderId":      "payment-1",
		"requestId":    "payment-1",
		"amount":       "350000",
		"orderInfo":    "Đơn hàng VC-2026-000001",
		"orderType":    "momo_wallet",
		"transId":      "2547392918",
		"resultCode":   "0",
		"message":      "Successful.",
		"payType":      "qr",
		"responseTime": "1756600000000",
		"extraData":    "",
	}
	raw := "accessKey=access-key&amount=350000&extraData=&message=Successful.&orderId=payment-1&orderInfo=Đơn hàng VC-2026-000001&orderType=momo_wallet&partnerCode=VIETCART&payType=qr&requestId=payment-1&responseTime=1756600000000&resultCode=0&transId=2547392918"
	params["signature"] = signHMACSHA256("secret-key", raw)

	result, err := provider.VerifyCallback(params)
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful verdict")
	}
	if result.PaymentID != "payment-1" {
		t.Fatalf("expected payment-1, got %q", result.PaymentID)
	}
	if result.TransactionRef != "2547392918" {
		t.Fatalf("expected transId carried over, got %q", result.TransactionRef)
	}

	params["resultCode"] = "1006"
	if _, err := provider.VerifyCallback(params); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature after tampering, got %v", err)
	}
}

func TestMoMoVerifyCallbackFailedPayment(t *testing.T) {
	provider, err := NewMoMoProvider(MoMoProviderConfig{Config: momoTestConfig("https://test-payment.momo.vn/v2/gateway/api/create")})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	params := map[string]string{
		"partnerCode":  "VIETCART",
		"orderId":      "payment-2",
		"requestId":    "payment-2",
		"amount":       "100000",
		"orderInfo":    "Đơn hàng VC-2026-000002",
		"orderType":    "momo_wallet",
		"transId":      "0",
		"resultCode":   "1006",
		"message":      "Transaction denied by user.",
		"payType":      "",
		"responseTime": "1756600100000",
		"extraData":    "",
	}
	raw := "accessKey=access-key&amount=100000&extraData=&message=Transaction denied by user.&orderId=payment-2&orderInfo=Đơn hàng VC-2026-000002&orderType=momo_wallet&partnerCode=VIETCART&payType=&requestId=payment-2&responseTime=1756600100000&resultCode=1006&transId=0"
	params["signature"] = signHMACSHA256("secret-key", raw)

	result, err := provider.VerifyCallback(params)
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failed verdict for resultCode 1006")
	}
}
