package greenchoice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/greenchoice")

const DefaultBaseUrl = "https://mijn.greenchoice.nl"

// Client scrapes usage and tariff figures out of the customer portal. It
// owns a cookie-bearing http session which is replaced wholesale whenever
// the portal decides the session has expired.
//
// A Client is not safe for concurrent use, callers must serialize calls
// against a given instance.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	username string
	password string
}

type ClientOptions struct {
	// BaseUrl defaults to the production portal when empty.
	BaseUrl  string
	Username string
	Password string
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.Username == "" {
		return nil, fmt.Errorf("need a username")
	}
	if opts.Password == "" {
		return nil, fmt.Errorf("need a password")
	}
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	c := &Client{
		BaseUrl:  baseUrl,
		username: opts.Username,
		password: opts.Password,
	}
	c.Http, err = c.newSession()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Update performs one full round of fetches and rebuilds the result
// mapping from scratch. A metric group that fails is logged and skipped,
// the update still returns whatever was retrieved successfully.
func (c *Client) Update(ctx context.Context) Result {
	ctx, span := tracer.Start(ctx, "Update")
	defer span.End()

	result := Result{}

	if err := c.updateUsage(ctx, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update usage values")
		slog.ErrorContext(ctx, "failed to update usage values", "err", err)
	}
	if err := c.updateTariffs(ctx, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update tariff values")
		slog.ErrorContext(ctx, "failed to update tariff values", "err", err)
	}

	return result
}

// MicrobusRequest calls the portal's RPC-style endpoint with a named
// operation and message payload. The portal routes most of its
// undocumented operations through here.
func (c *Client) MicrobusRequest(ctx context.Context, name string, message any) (*resty.Response, error) {
	if message == nil {
		message = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "/microbus/request", map[string]any{
		"name":    name,
		"message": message,
	})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body(), out); err != nil {
		return fmt.Errorf("parse %s payload: %w", path, err)
	}
	return nil
}
