/*
pesapal.go - Pesapal API 3.0 client

FLOW:
  Every call is bearer-authenticated with a short-lived token obtained from
  RequestToken using the consumer key/secret. Orders carry a notification id
  from a one-time IPN URL registration; RegisterIPN is called at startup and
  the id cached on the client.

ERRORS:
  All failures come back as *ledger.GatewayError wrapping the transport or
  decode error, so handlers can map them to a 502 without inspecting strings.
*/
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lunserk/sacco-core/ledger"
	"github.com/lunserk/sacco-core/metrics"
)

const tokenLifetime = 4 * time.Minute

// PesapalConfig carries the credentials and endpoints for the live client.
type PesapalConfig struct {
	BaseURL        string // e.g. https://pay.pesapal.com/v3
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string // browser redirect after checkout
	IPNURL         string // server-to-server notification endpoint
	Currency       string // e.g. KES
}

// Pesapal is the live Gateway implementation.
type Pesapal struct {
	cfg    PesapalConfig
	client *http.Client
	log    *zap.Logger

	mu             sync.Mutex
	token          string
	tokenExpiry    time.Time
	notificationID string
}

// NewPesapal creates a client. RegisterIPN must be called once before
// SubmitOrder.
func NewPesapal(cfg PesapalConfig, log *zap.Logger) *Pesapal {
	return &Pesapal{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

func (p *Pesapal) gatewayErr(op string, err error) error {
	metrics.GatewayErrorsTotal.WithLabelValues(op).Inc()
	return &ledger.GatewayError{Op: op, Err: err}
}

// accessToken returns a cached token, refreshing when expired.
func (p *Pesapal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	body := map[string]string{
		"consumer_key":    p.cfg.ConsumerKey,
		"consumer_secret": p.cfg.ConsumerSecret,
	}
	var out struct {
		Token string `json:"token"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := p.post(ctx, "/api/Auth/RequestToken", "", body, &out); err != nil {
		return "", p.gatewayErr("request_token", err)
	}
	if out.Token == "" {
		msg := "empty token"
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", p.gatewayErr("request_token", fmt.Errorf("pesapal: %s", msg))
	}

	p.token = out.Token
	p.tokenExpiry = time.Now().Add(tokenLifetime)
	return p.token, nil
}

// RegisterIPN registers the notification URL and caches the returned id.
func (p *Pesapal) RegisterIPN(ctx context.Context) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	body := map[string]string{
		"url":                   p.cfg.IPNURL,
		"ipn_notification_type": "GET",
	}
	var out struct {
		IPNID string `json:"ipn_id"`
	}
	if err := p.post(ctx, "/api/URLSetup/RegisterIPN", token, body, &out); err != nil {
		return p.gatewayErr("register_ipn", err)
	}
	if out.IPNID == "" {
		return p.gatewayErr("register_ipn", fmt.Errorf("pesapal: empty ipn id"))
	}

	p.mu.Lock()
	p.notificationID = out.IPNID
	p.mu.Unlock()

	p.log.Info("registered payment notification url", zap.String("ipn_id", out.IPNID))
	return nil
}

// SubmitOrder implements Gateway.
func (p *Pesapal) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	notificationID := p.notificationID
	p.mu.Unlock()
	if notificationID == "" {
		return nil, p.gatewayErr("submit_order", fmt.Errorf("pesapal: ipn not registered"))
	}

	currency := req.Currency
	if currency == "" {
		currency = p.cfg.Currency
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = p.cfg.CallbackURL
	}

	body := map[string]any{
		"id":              req.Reference,
		"currency":        currency,
		"amount":          req.Amount,
		"description":     req.Description,
		"callback_url":    callback,
		"notification_id": notificationID,
		"billing_address": map[string]string{
			"email_address": req.Email,
			"phone_number":  req.Phone,
			"first_name":    req.FirstName,
			"last_name":     req.LastName,
		},
	}
	var out struct {
		OrderTrackingID string `json:"order_tracking_id"`
		RedirectURL     string `json:"redirect_url"`
		Error           *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := p.post(ctx, "/api/Transactions/SubmitOrderRequest", token, body, &out); err != nil {
		return nil, p.gatewayErr("submit_order", err)
	}
	if out.OrderTrackingID == "" {
		msg := "empty order tracking id"
		if out.Error != nil {
			msg = out.Error.Message
		}
		return nil, p.gatewayErr("submit_order", fmt.Errorf("pesapal: %s", msg))
	}

	return &OrderResponse{
		OrderTrackingID: out.OrderTrackingID,
		RedirectURL:     out.RedirectURL,
	}, nil
}

// VerifyStatus implements Gateway.
func (p *Pesapal) VerifyStatus(ctx context.Context, orderTrackingID string) (*StatusResponse, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/Transactions/GetTransactionStatus?orderTrackingId=%s",
		p.cfg.BaseURL, orderTrackingID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, p.gatewayErr("verify_status", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.gatewayErr("verify_status", err)
	}
	defer resp.Body.Close()

	var out struct {
		PaymentStatusDescription string `json:"payment_status_description"`
		ConfirmationCode         string `json:"confirmation_code"`
		PaymentMethod            string `json:"payment_method"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, p.gatewayErr("verify_status", err)
	}

	return &StatusResponse{
		Status:          NormalizeStatus(out.PaymentStatusDescription),
		RawStatus:       out.PaymentStatusDescription,
		ConfirmationRef: out.ConfirmationCode,
		PaymentMethod:   out.PaymentMethod,
	}, nil
}

func (p *Pesapal) post(ctx context.Context, path, token string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("pesapal: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
