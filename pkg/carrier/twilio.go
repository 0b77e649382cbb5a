package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/dialbill/pkg/credentials"
	"github.com/dmitrymomot/dialbill/pkg/logger"
)

// DefaultBaseURL is the Twilio REST API root.
const DefaultBaseURL = "https://api.twilio.com"

// TwilioConfig configures the REST adapter.
type TwilioConfig struct {
	BaseURL    string        `env:"TWILIO_API_BASE_URL" envDefault:"https://api.twilio.com"`
	Timeout    time.Duration `env:"TWILIO_TIMEOUT" envDefault:"10s"`
	MaxRetries int           `env:"TWILIO_MAX_RETRIES" envDefault:"2"`
}

// Twilio is a Sender over the Twilio REST API.
type Twilio struct {
	baseURL    string
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    Backoff
	breaker    *CircuitBreaker
	log        *slog.Logger
}

var _ Sender = (*Twilio)(nil)

// TwilioOption configures a Twilio adapter.
type TwilioOption func(*Twilio)

func WithHTTPClient(c *http.Client) TwilioOption {
	return func(t *Twilio) {
		if c != nil {
			t.client = c
		}
	}
}

func WithBackoff(b Backoff) TwilioOption {
	return func(t *Twilio) {
		if b != nil {
			t.backoff = b
		}
	}
}

// WithCircuitBreaker shares one breaker across every request of the adapter.
func WithCircuitBreaker(cb *CircuitBreaker) TwilioOption {
	return func(t *Twilio) { t.breaker = cb }
}

func WithLogger(l *slog.Logger) TwilioOption {
	return func(t *Twilio) {
		if l != nil {
			t.log = l
		}
	}
}

func NewTwilio(cfg TwilioConfig, opts ...TwilioOption) (*Twilio, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("base url %q", cfg.BaseURL))
	}

	t := &Twilio{
		baseURL:    base,
		timeout:    cfg.Timeout,
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    DefaultBackoff(),
		log:        slog.Default(),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	if t.timeout <= 0 {
		t.timeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(logger.Component("carrier"))
	return t, nil
}

type twilioResource struct {
	SID         string  `json:"sid"`
	Status      string  `json:"status"`
	Price       *string `json:"price"`
	NumSegments string  `json:"num_segments"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

func (t *Twilio) SendMessage(ctx context.Context, h credentials.Handle, msg Message) (Result, error) {
	if strings.TrimSpace(msg.To) == "" || strings.TrimSpace(msg.Body) == "" {
		return Result{}, errors.Join(ErrInvalidMessage, errors.New("recipient and body are required"))
	}
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("Body", msg.Body)
	switch {
	case msg.MessagingServiceSID != "":
		form.Set("MessagingServiceSid", msg.MessagingServiceSID)
	case msg.From != "":
		form.Set("From", msg.From)
	default:
		return Result{}, errors.Join(ErrInvalidMessage, errors.New("sender number or messaging service is required"))
	}
	return t.create(ctx, h, "Messages.json", form)
}

func (t *Twilio) CreateCall(ctx context.Context, h credentials.Handle, call Call) (Result, error) {
	if strings.TrimSpace(call.To) == "" || strings.TrimSpace(call.From) == "" || strings.TrimSpace(call.TwiMLURL) == "" {
		return Result{}, errors.Join(ErrInvalidMessage, errors.New("to, from and twiml url are required"))
	}
	form := url.Values{}
	form.Set("To", call.To)
	form.Set("From", call.From)
	form.Set("Url", call.TwiMLURL)
	return t.create(ctx, h, "Calls.json", form)
}

func (t *Twilio) create(ctx context.Context, h credentials.Handle, resource string, form url.Values) (Result, error) {
	if h.AccountSID == "" || h.Username == "" || h.Password == "" {
		return Result{}, ErrMissingHandle
	}
	if t.breaker != nil && !t.breaker.Allow() {
		return Result{}, ErrCircuitOpen
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s", t.baseURL, url.PathEscape(h.AccountSID), resource)
	log := t.log.With(logger.Masked("account_sid", h.AccountSID))

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, errors.Join(ErrSendFailed, ctx.Err())
			case <-time.After(t.backoff.NextInterval(attempt)):
			}
		}

		res, status, err := t.attempt(ctx, h, endpoint, form)
		if t.breaker != nil {
			if err == nil || isPermanent(status) {
				t.breaker.RecordSuccess()
			} else {
				t.breaker.RecordFailure()
			}
		}
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !retryable(status) {
			break
		}
		log.WarnContext(ctx, "carrier request will be retried",
			slog.Int("attempt", attempt+1),
			slog.Int("status", status),
			logger.Error(err))
	}
	return Result{}, errors.Join(ErrSendFailed, lastErr)
}

func (t *Twilio) attempt(ctx context.Context, h credentials.Handle, endpoint string, form url.Values) (Result, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, 0, err
	}
	req.SetBasicAuth(h.Username, h.Password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dialbill/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, 0, errors.Join(ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, resp.StatusCode, statusError(resp.StatusCode, body)
	}

	var out twilioResource
	if err := json.Unmarshal(body, &out); err != nil || out.SID == "" {
		return Result{}, resp.StatusCode, errors.Join(ErrUnexpectedPayload, err)
	}
	return out.result(), resp.StatusCode, nil
}

func (r twilioResource) result() Result {
	res := Result{ExternalID: r.SID, Status: r.Status, Segments: 1}
	if r.Price != nil {
		if p, err := decimal.NewFromString(*r.Price); err == nil {
			res.Price = p.Abs()
		}
	}
	if n, err := strconv.Atoi(r.NumSegments); err == nil && n > 0 {
		res.Segments = n
	}
	return res
}

func statusError(status int, body []byte) error {
	var apiErr twilioError
	msg := fmt.Sprintf("carrier returned status %d", status)
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		msg = fmt.Sprintf("%s: %d %s", msg, apiErr.Code, apiErr.Message)
	}
	if isPermanent(status) {
		return fmt.Errorf("%w: %s", ErrPermanentFailure, msg)
	}
	return fmt.Errorf("%w: %s", ErrTemporaryFailure, msg)
}

// retryable limits retries to responses that guarantee the request was not
// accepted. A timeout or a 500 may hide a delivered message, so those are
// returned to the caller instead of being sent twice.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func isPermanent(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout
}
