package ratingsapi

import (
	"context"
	"encoding/json"
	"fide-scraper/internal/components/assert"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/rating"
	"fide-scraper/internal/reconcile"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fide-scraper/notify/ratingsapi")

const (
	report_client_post   = "client.post"
	report_client_notify = "client.notify"
)

type Config struct {
	Endpoint string
	Token    string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after a 5xx, a timeout or a
	// connection failure. 4xx responses are never retried.
	Retries   int
	RetryWait time.Duration
}

// Enabled reports whether both the endpoint and the token are configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Token != ""
}

// Update is the body of one POST, unrated disciplines are null.
type Update struct {
	Date           string `json:"date"`
	FideID         string `json:"fide_id"`
	PlayerName     string `json:"player_name"`
	StandardRating *int   `json:"standard_rating"`
	RapidRating    *int   `json:"rapid_rating"`
	BlitzRating    *int   `json:"blitz_rating"`
}

func nullable(r rating.Rating) *int {
	points, ok := r.Value()
	if !ok {
		return nil
	}
	return &points
}

func NewUpdate(id, name string, record rating.MonthlyRecord) Update {
	return Update{
		Date:           rating.FormatDate(record.Month),
		FideID:         id,
		PlayerName:     name,
		StandardRating: nullable(record.Standard),
		RapidRating:    nullable(record.Rapid),
		BlitzRating:    nullable(record.Blitz),
	}
}

// StatusError is any answer from the api other than 200 OK.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	endpoint string
	http     *resty.Client
	tel      telemetry.API
}

func NewClient(config Config, output telemetry.InstrumentOutput, tel telemetry.API) *Client {
	assert.NotEmptyStr(config.Endpoint)
	assert.NotEmptyStr(config.Token)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("ratings_api", tel)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = time.Second * 5
	}
	retryWait := config.RetryWait
	if retryWait <= 0 {
		retryWait = time.Millisecond * 500
	}

	httpClient := resty.New()
	httpClient.SetTimeout(timeout)
	httpClient.SetHeader("Authorization", fmt.Sprintf("Token %s", config.Token))
	httpClient.SetHeader("Content-Type", "application/json")
	httpClient.SetRetryCount(config.Retries)
	httpClient.SetRetryWaitTime(retryWait)
	httpClient.SetRetryMaxWaitTime(retryWait * 4)
	httpClient.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return res.StatusCode() >= 500
	})

	telemetry.InstrumentResty(httpClient, tel, output)

	return &Client{
		endpoint: config.Endpoint,
		http:     httpClient,
		tel:      tel,
	}
}

// Post sends a single update, it succeeds only on 200 OK.
func (c *Client) Post(ctx context.Context, update Update) error {
	ctx, span := tracer.Start(ctx, "Post")
	defer span.End()
	span.SetAttributes(
		attribute.String("fide_id", update.FideID),
		attribute.String("date", update.Date),
	)

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(update).
		Post(c.endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("post update: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		err := &StatusError{
			StatusCode: res.StatusCode(),
			Message:    errorMessage(res.Body()),
		}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	err := json.Unmarshal(body, &payload)
	if err == nil && payload.Error != "" {
		return payload.Error
	}
	text := []rune(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if len(text) == 0 {
		return "Unknown error"
	}
	return string(text)
}

// Notify posts one update per new month of every successful outcome. A
// failed post is counted and never stops the remaining ones.
func (c *Client) Notify(ctx context.Context, outcomes []reconcile.Outcome) (posted int, failed int) {
	ctx, span := tracer.Start(ctx, "Notify")
	defer span.End()

	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		for _, month := range o.NewMonths {
			err := c.Post(ctx, NewUpdate(o.PlayerID, o.Name, month))
			if err != nil {
				failed++
				c.tel.ReportWarning(report_client_post, err, o.PlayerID, rating.FormatDate(month.Month))
				continue
			}
			posted++
		}
	}

	span.SetAttributes(
		attribute.Int("posted", posted),
		attribute.Int("failed", failed),
	)
	c.tel.ReportCount(report_client_notify, int64(posted))
	return posted, failed
}
