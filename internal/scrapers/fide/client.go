package fide

import (
	"context"
	"errors"
	"fide-scraper/internal/components/assert"
	"fide-scraper/internal/components/telemetry"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fide-scraper/scrapers/fide")

const (
	report_client_fetch_profile = "client.fetch-profile"
)

const DefaultBaseURL = "https://ratings.fide.com"

var (
	// ErrNotFound means the source has no profile for the identifier.
	ErrNotFound = errors.New("player not found")
	// ErrTransport is a network level failure, ex. connection refused.
	ErrTransport = errors.New("network error")
	// ErrTimeout means the request did not complete within the client timeout.
	ErrTimeout = errors.New("request timeout")
)

// HTTPError is a non-404 error status returned by the source.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// BypassCloudflare wraps the transport so requests look like they come
	// from a browser.
	BypassCloudflare bool
	// Output receives full dumps of every request, it may be nil.
	Output telemetry.InstrumentOutput
}

// Client fetches raw profile pages.
type Client struct {
	baseURL string
	http    *resty.Client
	tel     telemetry.API
}

func NewClient(opts Options, tel telemetry.API) *Client {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("fide_scraper", tel)

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 10
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseURL)
	httpClient.SetTimeout(timeout)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	if opts.BypassCloudflare {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		tel:     tel,
	}
}

// ProfileURL is the public profile page of a player.
func ProfileURL(baseURL, id string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/profile/%s", baseURL, id)
}

func (c *Client) ProfileURL(id string) string {
	return ProfileURL(c.baseURL, id)
}

// FetchProfile returns the raw markup of a player's profile page.
//
// A 404 is reported as ErrNotFound, any other non-2xx status as *HTTPError,
// and failures to get a response at all as ErrTimeout or ErrTransport.
func (c *Client) FetchProfile(ctx context.Context, id string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "FetchProfile")
	defer span.End()
	span.SetAttributes(attribute.String("fide_id", id))

	c.tel.ReportDebug(report_client_fetch_profile, id)

	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/profile/{id}")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	switch {
	case res.StatusCode() == http.StatusNotFound:
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	case res.IsError() || res.StatusCode() < 200 || res.StatusCode() >= 300:
		err := &HTTPError{StatusCode: res.StatusCode(), Status: res.Status()}
		span.SetStatus(codes.Error, err.Error())
		c.tel.ReportWarning(report_client_fetch_profile, err, id)
		return nil, err
	}

	return res.Body(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
