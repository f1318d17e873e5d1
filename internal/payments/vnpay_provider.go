package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vietcart/api/internal/platform/config"
)

// VNPayProviderConfig configures the VNPay adapter.
type VNPayProviderConfig struct {
	Config config.VNPayConfig
	Clock  func() time.Time
}

// VNPayProvider builds signed redirect URLs for VNPay's pay gateway and
// verifies return/IPN callbacks by recomputing the HMAC-SHA512 hash over the
// sorted query parameters. No outbound HTTP call is needed to open a payment.
type VNPayProvider struct {
	cfg   config.VNPayConfig
	clock func() time.Time
}

// NewVNPayProvider constructs a VNPay Provider using the given configuration.
func NewVNPayProvider(cfg VNPayProviderConfig) (*VNPayProvider, error) {
	if strings.TrimSpace(cfg.Config.TmnCode) == "" {
		return nil, errors.New("vnpay: tmn code is required")
	}
	if strings.TrimSpace(cfg.Config.HashSecret) == "" {
		return nil, errors.New("vnpay: hash secret is required")
	}
	if strings.TrimSpace(cfg.Config.PayURL) == "" {
		return nil, errors.New("vnpay: pay url is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &VNPayProvider{
		cfg: cfg.Config,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// CreatePayment builds the signed pay URL the customer is redirected to.
// VNPay expects amounts multiplied by 100.
func (p *VNPayProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error) {
	if p == nil {
		return PaymentIntent{}, errors.New("vnpay: provider is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return PaymentIntent{}, errors.New("vnpay: payment id is required")
	}
	if req.Amount <= 0 {
		return PaymentIntent{}, errors.New("vnpay: amount must be positive")
	}

	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	now := p.clock()
	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    p.cfg.TmnCode,
		"vnp_Amount":     fmt.Sprintf("%d", req.Amount*100),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     paymentID,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  p.cfg.ReturnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format("20060102150405"),
	}

	query := encodeSortedQuery(params)
	secureHash := signHMACSHA512(p.cfg.HashSecret, query)
	redirect := fmt.Sprintf("%s?%s&vnp_SecureHash=%s", p.cfg.PayURL, query, secureHash)

	return PaymentIntent{
		Gateway:     "vnpay",
		RedirectURL: redirect,
		Raw: map[string]any{
			"txnRef":     paymentID,
			"createDate": params["vnp_CreateDate"],
		},
	}, nil
}

// VerifyCallback recomputes the secure hash over every vnp_ parameter except
// the hash fields themselves. Response code 00 means paid.
func (p *VNPayProvider) VerifyCallback(params map[string]string) (CallbackResult, error) {
	if p == nil {
		return CallbackResult{}, errors.New("vnpay: provider is nil")
	}
	signature := strings.TrimSpace(params["vnp_SecureHash"])
	if signature == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing vnp_SecureHash", ErrInvalidSignature)
	}

	signed := make(map[string]string, len(params))
	for key, value := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if strings.HasPrefix(key, "vnp_") {
			signed[key] = value
		}
	}

	expected := signHMACSHA512(p.cfg.HashSecret, encodeSortedQuery(signed))
	if !hmac.Equal([]byte(strings.ToLower(expected)), []byte(strings.ToLower(signature))) {
		return CallbackResult{}, ErrInvalidSignature
	}

	return CallbackResult{
		Gateway:        "vnpay",
		PaymentID:      strings.TrimSpace(params["vnp_TxnRef"]),
		Success:        params["vnp_ResponseCode"] == "00",
		TransactionRef: strings.TrimSpace(params["vnp_TransactionNo"]),
		Message:        params["vnp_OrderInfo"],
		Raw:            params,
	}, nil
}

// encodeSortedQuery encodes the parameters in lexical key order, the byte
// layout VNPay signs on both legs.
func encodeSortedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(url.QueryEscape(key))
		builder.WriteByte('=')
		builder.WriteString(url.QueryEscape(params[key]))
	}
	return builder.String()
}

func signHMACSHA512(secret, payload string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
