// client.go contains the logic for talking to hackerrank over HTTP, turning the
// responses into submissions is done in parse.go

package hackerrank

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"hrexport/internal/fetch"
	"hrexport/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = telemetry.Tracer("hrexport/internal/scrapers/hackerrank")

const (
	report_client_login        = "client.login"
	report_client_fetch_page   = "client.fetch-page"
	report_client_fetch_detail = "client.fetch-detail"
)

const DefaultBaseUrl = "https://www.hackerrank.com"

var ErrLoginFailed = errors.New("hackerrank: login failed, check HACKERRANK_USER and HACKERRANK_PWD")

type ClientOptions struct {
	BaseUrl string
	// per request timeout, defaults to 30 seconds
	Timeout time.Duration
	// 0 means unlimited
	RequestsPerSecond float64
	CloudflareBypass  bool
	// optional dump of every HTTP exchange
	Dump telemetry.MessageOutput
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	tel telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	tel = telemetry.NewScopedAPI("hackerrank", tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(baseUrl.String())
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(opts.Timeout)

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	rateLimiter := rate.NewLimiter(limit, 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, tel, opts.Dump)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
		tel:     tel,
	}, nil
}

// classifyTransport tags a failed request so the fetch policy knows whether
// to retry it.
func classifyTransport(err error) error {
	if fetch.Classify(err) == fetch.OutcomeTimeout {
		return fmt.Errorf("%w: %w", fetch.ErrTimeout, err)
	}
	return err
}

// classifyStatus turns an unexpected status code into an error, nil means the
// body can be parsed. A 404 is only retried where `missingMayAppear`, list
// pages are retried without bound so a missing one must fail the run.
func classifyStatus(res *resty.Response, missingMayAppear bool) error {
	code := res.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound && missingMayAppear,
		code == http.StatusTooManyRequests,
		code >= 500:
		return fmt.Errorf("%w: status %s", fetch.ErrNotReady, res.Status())
	}
	return fmt.Errorf("unexpected status %s", res.Status())
}

func (c *Client) getDocument(ctx context.Context, endpoint string, missingMayAppear bool) (*goquery.Document, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, classifyTransport(err)
	}
	err = classifyStatus(res, missingMayAppear)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

type loginResponse struct {
	Status bool     `json:"status"`
	Errors []string `json:"errors"`
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	loginError := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return fmt.Errorf("hackerrank: login: %w", err)
	}

	doc, err := c.getDocument(ctx, "/auth/login", false)
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login page: %w", err))
		return loginError(err)
	}
	csrfToken := doc.Find("meta[name=csrf-token]").AttrOr("content", "")
	if csrfToken == "" {
		err := fmt.Errorf("could not find csrf token")
		c.tel.ReportBroken(report_client_login, err)
		return loginError(err)
	}

	var body loginResponse
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("x-csrf-token", csrfToken).
		SetBody(map[string]any{
			"login":       username,
			"password":    password,
			"remember_me": false,
		}).
		SetResult(&body).
		SetError(&body).
		Post("/auth/login")
	if err != nil {
		c.tel.ReportBroken(report_client_login, fmt.Errorf("login request: %w", err))
		return loginError(classifyTransport(err))
	}
	if res.StatusCode() >= 500 {
		return loginError(fmt.Errorf("unexpected status %s", res.Status()))
	}
	if !res.IsSuccess() || !body.Status {
		c.tel.ReportWarning(report_client_login, "rejected credentials", res.Status(), body.Errors)
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}

	c.tel.ReportDebug("logged in", username)
	return nil
}

// FetchPage reads one page of the submission list, newest first.
func (c *Client) FetchPage(ctx context.Context, n int) (fetch.Page, error) {
	ctx, span := tracer.Start(ctx, "client:FetchPage")
	defer span.End()
	span.SetAttributes(attribute.Int("page", n))

	endpoint := "/submissions/all/page/" + strconv.Itoa(n)
	c.tel.ReportDebug(report_client_fetch_page, endpoint)

	doc, err := c.getDocument(ctx, endpoint, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return fetch.Page{}, fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	page, skipped, err := parseSubmissionPage(doc, c.BaseUrl, n == 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse")
		return fetch.Page{}, fmt.Errorf("parse %s: %w", endpoint, err)
	}
	if skipped > 0 {
		c.tel.ReportWarning(report_client_fetch_page, "skipped unreadable submissions", endpoint, skipped)
	}
	span.SetAttributes(attribute.Int("entries", len(page.Entries)))
	return page, nil
}

// FetchDetail reads a submission's source code from its code page.
func (c *Client) FetchDetail(ctx context.Context, locator string) (fetch.Detail, error) {
	ctx, span := tracer.Start(ctx, "client:FetchDetail")
	defer span.End()
	span.SetAttributes(attribute.String("url", locator))

	c.tel.ReportDebug(report_client_fetch_detail, locator)

	doc, err := c.getDocument(ctx, locator, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return fetch.Detail{}, fmt.Errorf("fetch %s: %w", locator, err)
	}
	detail, err := parseCodePage(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse")
		return fetch.Detail{}, fmt.Errorf("parse %s: %w", locator, err)
	}
	span.SetAttributes(attribute.Int("lines", len(detail.Code)))
	return detail, nil
}
