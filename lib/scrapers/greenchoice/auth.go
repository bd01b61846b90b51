package greenchoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"greenchoice-scraper/lib/htmlutil"
	"greenchoice-scraper/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

// ErrLoginFailed means the sign-in response was missing the expected OIDC
// form fields: either the credentials are wrong or the portal markup
// changed underneath us.
var ErrLoginFailed = errors.New("login failed, check your credentials")

var errNotFound = errors.New("endpoint not found")

const (
	authorizePath = "/connect/authorize"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	// retries of a failed request, immediate, no backoff
	requestRetries = 2
	maxRedirects   = 10
)

var oidcFields = []string{"code", "scope", "state", "session_state"}

func (c *Client) newSession() (*resty.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(c.BaseUrl.String())
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(recordingRedirectPolicy(maxRedirects))
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, "scrapers/greenchoice/http", restyInstrumentOutput)
	return client, nil
}

// ActivateSession performs the login handshake from scratch, replacing any
// existing session and its cookie jar.
func (c *Client) ActivateSession(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ActivateSession")
	defer span.End()

	session, err := c.newSession()
	if err != nil {
		return err
	}
	c.Http = session

	// first, get the login cookies and form data
	slog.InfoContext(ctx, "retrieving login cookies")
	res, err := c.Http.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}

	// the portal redirects to the identity provider's login form, which
	// carries the url to return to after signing in
	loginUrl := res.RawResponse.Request.URL
	returnUrl := loginUrl.Query().Get("ReturnUrl")

	doc, err := htmlutil.ParseDocument(res.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}
	token := htmlutil.InputValue(doc, "__RequestVerificationToken")
	if token == "" {
		span.SetStatus(codes.Error, "failed to find verification token")
		return fmt.Errorf("could not find verification token on login page")
	}

	// perform actual sign in
	slog.DebugContext(ctx, "logging in with username and password")
	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"ReturnUrl":                  returnUrl,
			"Username":                   c.username,
			"Password":                   c.password,
			"__RequestVerificationToken": token,
			"RememberLogin":              "true",
		}).
		Post(loginUrl.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	// exchange the oidc params for a login cookie
	oidc, err := oidcParams(res.Body())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	slog.DebugContext(ctx, "completing oidc exchange")
	_, err = c.Http.R().
		SetContext(ctx).
		SetFormData(oidc).
		Post("/signin-oidc")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to complete oidc exchange")
		return err
	}

	slog.DebugContext(ctx, "login success")
	return nil
}

// oidcParams pulls the hidden form fields out of the sign-in response that
// the callback endpoint needs to issue a session cookie. All four must be
// present, anything less means the login did not go through.
func oidcParams(body []byte) (map[string]string, error) {
	doc, err := htmlutil.ParseDocument(body)
	if err != nil {
		return nil, err
	}
	params := htmlutil.HiddenInputs(doc, oidcFields...)
	if len(params) != len(oidcFields) {
		return nil, ErrLoginFailed
	}
	return params, nil
}

// do issues an authenticated request. A detected session expiry triggers
// one re-login and one replay of the original request, never a loop.
// Other failed requests are retried up to a small fixed count.
func (c *Client) do(ctx context.Context, method, path string, body any) (*resty.Response, error) {
	var lastErr error
	refreshed := false

	for attempt := 0; attempt <= requestRetries; attempt++ {
		res, hops, err := c.execute(ctx, method, path, body)
		if err != nil {
			lastErr = err
			slog.DebugContext(ctx, "retrying request", "method", method, "url", path, "err", err)
			continue
		}

		if c.sessionExpired(res, hops) {
			if refreshed {
				return nil, fmt.Errorf("%s %s: session expired again right after refresh", method, path)
			}
			refreshed = true

			slog.DebugContext(ctx, "session expired, refreshing", "method", method, "url", path)
			if err := c.ActivateSession(ctx); err != nil {
				return nil, err
			}
			res, hops, err = c.execute(ctx, method, path, body)
			if err != nil {
				lastErr = err
				continue
			}
			if c.sessionExpired(res, hops) {
				return nil, fmt.Errorf("%s %s: session expired again right after refresh", method, path)
			}
		}

		if res.StatusCode() == http.StatusNotFound {
			// meaningful to callers, some endpoints only exist for newer accounts
			return res, fmt.Errorf("%s %s: %w", method, path, errNotFound)
		}
		if res.IsError() {
			lastErr = fmt.Errorf("%s %s: unexpected status %d", method, path, res.StatusCode())
			slog.DebugContext(ctx, "retrying request", "method", method, "url", path, "err", lastErr)
			continue
		}
		return res, nil
	}

	return nil, lastErr
}

func (c *Client) execute(ctx context.Context, method, path string, body any) (*resty.Response, []*url.URL, error) {
	ctx, hops := withRedirectRecording(ctx)

	req := c.Http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Execute(method, path)
	if err != nil {
		return nil, nil, err
	}
	return res, *hops, nil
}

// sessionExpired decides whether a response means the session cookie is no
// longer valid. A redirect chain that bounces through the identity
// provider's authorize endpoint is authoritative; a plain 403 on the final
// response is kept as a heuristic because the portal has answered with
// both over the years.
func (c *Client) sessionExpired(res *resty.Response, hops []*url.URL) bool {
	for _, hop := range hops {
		if strings.HasSuffix(hop.Path, authorizePath) {
			return true
		}
	}
	return res.StatusCode() == http.StatusForbidden
}

type redirectHopsKey struct{}

// withRedirectRecording arms the request context with a slot the redirect
// policy fills in, so the caller can inspect where a request got bounced.
func withRedirectRecording(ctx context.Context) (context.Context, *[]*url.URL) {
	hops := &[]*url.URL{}
	return context.WithValue(ctx, redirectHopsKey{}, hops), hops
}

func recordingRedirectPolicy(maxHops int) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return fmt.Errorf("stopped after %d redirects", maxHops)
		}
		if hops, ok := req.Context().Value(redirectHopsKey{}).(*[]*url.URL); ok {
			*hops = append(*hops, req.URL)
		}
		return nil
	})
}
