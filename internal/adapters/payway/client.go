// Package payway is the HTTP client for the QR payment gateway.
package payway

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"roomhub/internal/adapters/observability"
	"roomhub/internal/domain"
)

const (
	service     = "payway"
	maxAttempts = 4
)

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

// New builds a gateway client. timeout bounds every single HTTP attempt.
func New(base, key string, rps int, timeout time.Duration) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("payment gateway base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

type chargeRequest struct {
	TranID    string      `json:"tran_id"`
	Amount    json.Number `json:"amount"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
}

type chargeResponse struct {
	Status string `json:"status"`
	Data   struct {
		Status struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			TranID  string `json:"tran_id"`
		} `json:"status"`
		Amount         flexDecimal `json:"amount"`
		Currency       string      `json:"currency"`
		QRString       string      `json:"qrString"`
		QRImage        string      `json:"qrImage"`
		AbapayDeeplink string      `json:"abapay_deeplink"`
		AppStore       string      `json:"app_store"`
		PlayStore      string      `json:"play_store"`
	} `json:"data"`
}

func (c *Client) CreateCharge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	body := chargeRequest{
		TranID:    req.TransactionID,
		Amount:    json.Number(req.Amount.StringFixed(2)),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}
	var out chargeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/qr", body, &out); err != nil {
		return domain.ChargeResult{}, err
	}
	if out.Status != "success" {
		return domain.ChargeResult{}, fmt.Errorf("%w: charge rejected: %s", domain.ErrGatewayUnavailable, out.Data.Status.Message)
	}
	tranID := out.Data.Status.TranID
	if tranID == "" {
		tranID = req.TransactionID
	}
	return domain.ChargeResult{
		TransactionID: tranID,
		Amount:        out.Data.Amount.Decimal,
		Currency:      out.Data.Currency,
		QRString:      out.Data.QRString,
		QRImage:       out.Data.QRImage,
		Deeplink:      out.Data.AbapayDeeplink,
		AppStore:      out.Data.AppStore,
		PlayStore:     out.Data.PlayStore,
	}, nil
}

type checkEnvelope struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Data *struct {
		PaymentStatusCode int         `json:"payment_status_code"`
		PaymentStatus     string      `json:"payment_status"`
		OriginalAmount    flexDecimal `json:"original_amount"`
		RefundAmount      flexDecimal `json:"refund_amount"`
		DiscountAmount    flexDecimal `json:"discount_amount"`
		APV               string      `json:"apv"`
		TransactionDate   string      `json:"transaction_date"`
	} `json:"data"`
}

// checkResponse accepts both the bare envelope and one wrapped in "data".
type checkResponse struct {
	checkEnvelope
	Wrapped *checkEnvelope
}

func (r *checkResponse) UnmarshalJSON(b []byte) error {
	var outer struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &outer); err != nil {
		return err
	}
	var inner checkEnvelope
	if len(outer.Data) > 0 && json.Unmarshal(outer.Data, &inner) == nil && inner.Status.Code != "" {
		r.Wrapped = &inner
		return nil
	}
	return json.Unmarshal(b, &r.checkEnvelope)
}

func (r *checkResponse) envelope() checkEnvelope {
	if r.Wrapped != nil {
		return *r.Wrapped
	}
	return r.checkEnvelope
}

func (c *Client) CheckStatus(ctx context.Context, txID string) (domain.GatewayStatus, error) {
	var out checkResponse
	// The gateway reads the transaction id from a GET body.
	if err := c.do(ctx, http.MethodGet, "/transaction/check", map[string]string{"tran_id": txID}, &out); err != nil {
		return domain.GatewayStatus{}, err
	}
	env := out.envelope()
	if env.Status.Code != "00" || env.Data == nil {
		return domain.GatewayStatus{}, fmt.Errorf("%w: %s (code %s)", domain.ErrTransactionNotFound, env.Status.Message, env.Status.Code)
	}
	d := env.Data
	return domain.GatewayStatus{
		StatusCode:      d.PaymentStatusCode,
		StatusText:      d.PaymentStatus,
		OriginalAmount:  d.OriginalAmount.null(),
		RefundAmount:    d.RefundAmount.null(),
		DiscountAmount:  d.DiscountAmount.null(),
		APV:             d.APV,
		TransactionDate: parseGatewayTime(d.TransactionDate),
	}, nil
}

// ---- Internals ----

// do sends a JSON request with client-side rate limiting and retries on
// 429/5xx and network errors, honoring Retry-After. Exhausted retries wrap
// domain.ErrGatewayUnavailable; a 404 wraps domain.ErrTransactionNotFound.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		// fresh request each attempt; the body reader is consumed by Do
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "roomhub/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, path, 0, time.Since(start))
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, ctx.Err())
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, lastErr)
		}
		observability.ObserveExternal(service, path, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
			}
			return nil

		case http.StatusNotFound:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return domain.ErrTransactionNotFound

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, lastErr)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: bad status %d: %s", domain.ErrGatewayUnavailable, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, lastErr)
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff is 200ms doubling per attempt plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

var gatewayTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func parseGatewayTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range gatewayTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var errBadAmount = errors.New("payway: malformed amount")
