package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"care-call-scheduler/internal/calls"
)

const defaultTwilioAPI = "https://api.twilio.com"

type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	CallerNumber   string
	WhatsAppNumber string

	// BaseURL replaces the REST API origin, for regional proxies and tests.
	BaseURL string
	// PublicURL is this service's externally reachable base URL.
	PublicURL string

	RequestsPerSecond int
	Timeout           time.Duration
}

// TwilioClient places calls and sends WhatsApp reminders through the Twilio
// SDK. Outbound requests share a token bucket so bursts of due calls stay
// under the account's rate limit.
type TwilioClient struct {
	cfg     TwilioConfig
	api     *openapi.ApiService
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewTwilioClient(cfg TwilioConfig, log *slog.Logger) *TwilioClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.BaseURL != "" && cfg.BaseURL != defaultTwilioAPI {
		if origin, err := url.Parse(cfg.BaseURL); err == nil && origin.Host != "" {
			httpClient.Transport = originRewrite{origin: origin, next: http.DefaultTransport}
		} else {
			log.Warn("twilio base url ignored", "base_url", cfg.BaseURL)
		}
	}
	sdk := &twclient.Client{
		Credentials: twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	sdk.SetAccountSid(cfg.AccountSID)

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Client: sdk})
	return &TwilioClient{
		cfg:     cfg,
		api:     rest.Api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
		log:     log,
	}
}

// originRewrite sends SDK requests to a different scheme and host.
type originRewrite struct {
	origin *url.URL
	next   http.RoundTripper
}

func (o originRewrite) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = o.origin.Scheme
	r.URL.Host = o.origin.Host
	r.Host = o.origin.Host
	return o.next.RoundTrip(r)
}

func (c *TwilioClient) Name() string { return "twilio" }

// HealthCheck fetches the account. It costs an API request, so callers
// should not run it on every readiness check.
func (c *TwilioClient) HealthCheck(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, err := c.api.FetchAccount(c.cfg.AccountSID); err != nil {
		return fmt.Errorf("%w: fetch account: %w", calls.ErrProvider, err)
	}
	return nil
}

func (c *TwilioClient) PlaceCall(ctx context.Context, number, callID string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(number)
	params.SetFrom(c.cfg.CallerNumber)
	params.SetUrl(withCallID(c.cfg.PublicURL, PathVoice, callID))
	params.SetMethod(http.MethodPost)
	params.SetStatusCallback(withCallID(c.cfg.PublicURL, PathStatus, callID))
	params.SetStatusCallbackMethod(http.MethodPost)
	params.SetStatusCallbackEvent([]string{"completed"})

	resp, err := c.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("%w: create call: %w", calls.ErrProvider, err)
	}
	if resp == nil || resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("%w: twilio returned no call sid", calls.ErrProvider)
	}
	c.log.Info("twilio call created", "call_id", callID, "call_sid", *resp.Sid)
	return *resp.Sid, nil
}

func (c *TwilioClient) SendReminder(ctx context.Context, number, name string, at time.Time) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(whatsApp(number))
	params.SetFrom(whatsApp(c.cfg.WhatsAppNumber))
	params.SetBody(ReminderText(name, at))

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("%w: create message: %w", calls.ErrProvider, err)
	}
	if resp == nil || resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

func (c *TwilioClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %w", calls.ErrProvider, err)
	}
	return nil
}

func whatsApp(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// IsAPIError reports whether err carries a Twilio API error response.
func IsAPIError(err error) (*twclient.TwilioRestError, bool) {
	var apiErr *twclient.TwilioRestError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
