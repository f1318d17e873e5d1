package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vietcart/api/internal/platform/config"
)

// MoMoLogger receives structured gateway events.
type MoMoLogger func(ctx context.Context, event string, fields map[string]any)

// MoMoProviderConfig configures the MoMo adapter.
type MoMoProviderConfig struct {
	Config  config.MoMoConfig
	Timeout time.Duration
	Logger  MoMoLogger
	Client  *resty.Client
}

// MoMoProvider creates wallet payments through MoMo's v2 gateway API and
// verifies IPN callbacks by recomputing the HMAC-SHA256 signature.
type MoMoProvider struct {
	cfg    config.MoMoConfig
	client *resty.Client
	logger MoMoLogger
}

// NewMoMoProvider constructs a MoMo Provider using the given configuration.
func NewMoMoProvider(cfg MoMoProviderConfig) (*MoMoProvider, error) {
	if strings.TrimSpace(cfg.Config.PartnerCode) == "" {
		return nil, errors.New("momo: partner code is required")
	}
	if strings.TrimSpace(cfg.Config.AccessKey) == "" {
		return nil, errors.New("momo: access key is required")
	}
	if strings.TrimSpace(cfg.Config.SecretKey) == "" {
		return nil, errors.New("momo: secret key is required")
	}
	if strings.TrimSpace(cfg.Config.Endpoint) == "" {
		return nil, errors.New("momo: endpoint is required")
	}

	client := cfg.Client
	if client == nil {
		client = resty.New()
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &MoMoProvider{
		cfg:    cfg.Config,
		client: client,
		logger: logger,
	}, nil
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	RequestID  string `json:"requestId"`
	OrderID    string `json:"orderId"`
}

// CreatePayment opens a captureWallet payment and returns its pay URL.
func (p *MoMoProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error) {
	if p == nil {
		return PaymentIntent{}, errors.New("momo: provider is nil")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return PaymentIntent{}, errors.New("momo: payment id is required")
	}
	if req.Amount <= 0 {
		return PaymentIntent{}, errors.New("momo: amount must be positive")
	}

	body := momoCreateRequest{
		PartnerCode: p.cfg.PartnerCode,
		AccessKey:   p.cfg.AccessKey,
		RequestID:   paymentID,
		Amount:      req.Amount,
		OrderID:     paymentID,
		OrderInfo:   req.OrderInfo,
		RedirectURL: p.cfg.ReturnURL,
		IpnURL:      p.cfg.NotifyURL,
		ExtraData:   "",
		RequestType: "captureWallet",
		Lang:        "vi",
	}
	body.Signature = p.signCreate(body)

	var parsed momoCreateResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&parsed).
		Post(p.cfg.Endpoint)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("momo: create payment: %w", err)
	}
	if resp.StatusCode() != 200 {
		return PaymentIntent{}, fmt.Errorf("momo: create payment returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if parsed.ResultCode != 0 {
		return PaymentIntent{}, fmt.Errorf("momo: create payment rejected with code %d: %s", parsed.ResultCode, parsed.Message)
	}
	if strings.TrimSpace(parsed.PayURL) == "" {
		return PaymentIntent{}, errors.New("momo: create payment response missing payUrl")
	}

	p.logger(ctx, "momo.payment.created", map[string]any{
		"paymentId": paymentID,
		"amount":    req.Amount,
	})

	return PaymentIntent{
		Gateway:     "momo",
		RedirectURL: parsed.PayURL,
		Raw: map[string]any{
			"requestId":  parsed.RequestID,
			"orderId":    parsed.OrderID,
			"resultCode": parsed.ResultCode,
			"message":    parsed.Message,
		},
	}, nil
}

// VerifyCallback recomputes the IPN signature per MoMo's documented field
// order and extracts the verdict. resultCode 0 means paid.
func (p *MoMoProvider) VerifyCallback(params map[string]string) (CallbackResult, error) {
	if p == nil {
		return CallbackResult{}, errors.New("momo: provider is nil")
	}
	signature := strings.TrimSpace(params["signature"])
	if signature == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		p.cfg.AccessKey,
		params["amount"],
		params["extraData"],
		params["message"],
		params["orderId"],
		params["orderInfo"],
		params["orderType"],
		params["partnerCode"],
		params["payType"],
		params["requestId"],
		params["responseTime"],
		params["resultCode"],
		params["transId"],
	)
	expected := signHMACSHA256(p.cfg.SecretKey, raw)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return CallbackResult{}, ErrInvalidSignature
	}

	return CallbackResult{
		Gateway:        "momo",
		PaymentID:      strings.TrimSpace(params["orderId"]),
		Success:        params["resultCode"] == "0",
		TransactionRef: strings.TrimSpace(params["transId"]),
		Message:        params["message"],
		Raw:            params,
	}, nil
}

func (p *MoMoProvider) signCreate(req momoCreateRequest) string {
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		req.AccessKey,
		req.Amount,
		req.ExtraData,
		req.IpnURL,
		req.OrderID,
		req.OrderInfo,
		req.PartnerCode,
		req.RedirectURL,
		req.RequestID,
		req.RequestType,
	)
	return signHMACSHA256(p.cfg.SecretKey, raw)
}

func signHMACSHA256(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
