package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/infra/metrics"
)

// Compile-time check
var (
	_ adapter.BillingAPI     = (*Client)(nil)
	_ adapter.AccountService = (*Client)(nil)
)

// Client talks to the backend that fronts the payment processor and the
// account service. Each call is authorized with the access token of the
// account in ctx.
type Client struct {
	http *resty.Client
	log  *zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	cl := logger.With().Str("component", "BillingClient").Logger()
	return &Client{http: rc, log: &cl}
}

// ---- wire DTOs ----

type checkoutBody struct {
	PlanID        string `json:"planId"`
	BillingCycle  string `json:"billingCycle"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

type checkoutSessionResp struct {
	URL string `json:"url"`
}

type upiPaymentResp struct {
	IntentID    string `json:"intentId"`
	RedirectURL string `json:"redirectUrl"`
}

type verifyBody struct {
	SessionID string `json:"sessionId"`
}

// verifyResp may carry an error code even on 2xx when success is false.
type verifyResp struct {
	errorBody
	Success      bool             `json:"success"`
	Subscription *subscriptionDTO `json:"subscription"`
}

type upiStatusResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type subscriptionDTO struct {
	Plan              string    `json:"plan"`
	Status            string    `json:"status"`
	CurrentPeriodEnd  time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool      `json:"cancelAtPeriodEnd"`
}

func (d subscriptionDTO) toModel() model.Subscription {
	return model.Subscription{
		Plan:              d.Plan,
		Status:            model.NormalizeSubscriptionStatus(d.Status),
		CurrentPeriodEnd:  d.CurrentPeriodEnd.UTC(),
		CancelAtPeriodEnd: d.CancelAtPeriodEnd,
	}
}

// errorBody accepts both {"code","message"} and {"error":{"code","message"}}.
type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func (e errorBody) normalize() (code, msg string) {
	code, msg = e.Code, e.Message
	if len(e.Error) == 0 {
		return code, msg
	}
	var nested struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &nested) == nil {
		if code == "" {
			code = nested.Code
		}
		if msg == "" {
			msg = nested.Message
		}
		return code, msg
	}
	var s string
	if json.Unmarshal(e.Error, &s) == nil && msg == "" {
		msg = s
	}
	return code, msg
}

// ---- BillingAPI ----

func (c *Client) CreateCheckoutSession(ctx context.Context, req model.CheckoutRequest) (string, error) {
	var out checkoutSessionResp
	body := checkoutBody{PlanID: req.PlanID, BillingCycle: string(req.BillingCycle), PaymentMethod: string(req.PaymentMethod)}
	if err := c.do(ctx, http.MethodPost, "/checkout-session", "checkout_session", body, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: checkout session without url", domain.ErrOperationFailed)
	}
	return out.URL, nil
}

func (c *Client) CreateUPIPayment(ctx context.Context, req model.CheckoutRequest) (model.CheckoutStart, error) {
	var out upiPaymentResp
	body := checkoutBody{PlanID: req.PlanID, BillingCycle: string(req.BillingCycle)}
	if err := c.do(ctx, http.MethodPost, "/upi-payment", "upi_payment", body, &out); err != nil {
		return model.CheckoutStart{}, err
	}
	if out.IntentID == "" {
		return model.CheckoutStart{}, fmt.Errorf("%w: upi payment without intent id", domain.ErrOperationFailed)
	}
	return model.CheckoutStart{PaymentMethod: model.PaymentMethodUPI, IntentID: out.IntentID, RedirectURL: out.RedirectURL}, nil
}

func (c *Client) VerifyCheckoutSession(ctx context.Context, sessionID model.SessionID) (adapter.VerifyResult, error) {
	var out verifyResp
	if err := c.do(ctx, http.MethodPost, "/verify-checkout-session", "verify_checkout_session", verifyBody{SessionID: sessionID.String()}, &out); err != nil {
		return adapter.VerifyResult{}, err
	}
	res := adapter.VerifyResult{Success: out.Success}
	if !out.Success {
		res.Code, res.Message = out.normalize()
	}
	if out.Subscription != nil {
		sub := out.Subscription.toModel()
		res.Subscription = &sub
	}
	return res, nil
}

func (c *Client) UPIStatus(ctx context.Context, intentID string) (model.UPIIntent, error) {
	var out upiStatusResp
	path := "/upi/status/" + url.PathEscape(intentID)
	if err := c.do(ctx, http.MethodGet, path, "upi_status", nil, &out); err != nil {
		return model.UPIIntent{}, err
	}
	return model.UPIIntent{
		IntentID: intentID,
		Status:   model.UPIStatus(strings.ToLower(strings.TrimSpace(out.Status))),
		Message:  out.Message,
	}, nil
}

func (c *Client) SubscriptionDetails(ctx context.Context) (model.Subscription, error) {
	var out subscriptionDTO
	if err := c.do(ctx, http.MethodGet, "/subscription/details", "subscription_details", nil, &out); err != nil {
		return model.Subscription{}, err
	}
	return out.toModel(), nil
}

// ---- AccountService ----

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", "logout", nil, nil)
}

func (c *Client) RefreshUser(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/me", "refresh_user", nil, nil)
}

// do issues one request. Non-2xx answers become *adapter.HTTPError; anything
// that never produced a status is returned as a transport error.
func (c *Client) do(ctx context.Context, method, path, endpoint string, body, result interface{}) error {
	r := c.http.R().SetContext(ctx).SetError(&errorBody{})
	if acct, ok := model.AccountFromContext(ctx); ok && acct.AccessToken != "" {
		r.SetAuthToken(acct.AccessToken)
	}
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		r.SetResult(result)
	}

	start := time.Now()
	resp, err := r.Execute(method, path)
	if err != nil {
		metrics.ObserveBackendCall(endpoint, 0, time.Since(start))
		c.log.Debug().Err(err).Str("endpoint", endpoint).Msg("backend transport error")
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	metrics.ObserveBackendCall(endpoint, resp.StatusCode(), resp.Time())

	if resp.IsError() || resp.StatusCode() >= 300 {
		he := &adapter.HTTPError{Status: resp.StatusCode()}
		if eb, ok := resp.Error().(*errorBody); ok && eb != nil {
			he.Code, he.Message = eb.normalize()
		}
		if he.Message == "" {
			he.Message = http.StatusText(resp.StatusCode())
		}
		c.log.Debug().Str("endpoint", endpoint).Int("status", he.Status).Str("code", he.Code).Msg("backend error response")
		return he
	}
	return nil
}
