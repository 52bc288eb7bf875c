// Package coolify is a thin HTTP client for the Coolify API, scoped to the
// project/application surface the panel needs: list and delete projects,
// create and deploy applications, and manage the environment variables used
// during bootstrap.
package coolify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "eject-panel"

// Client talks to one Coolify instance. Credentials are per target server,
// so callers construct a Client from the server record they operate on.
type Client struct {
	rc *resty.Client

	baseURL string
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout bounds every request issued by the client. Expiry surfaces as
// a transport error, which callers treat like any other failed remote call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.rc.SetTimeout(d)
	}
}

// New creates a client for the Coolify instance at baseURL using the given
// bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(baseURL + "/api/v1").
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetTimeout(30 * time.Second)

	c := &Client{rc: rc, baseURL: baseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the instance URL the client was built for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, url string, result interface{}) error {
	req := c.rc.R().SetContext(ctx)
	if result != nil {
		req.SetResult(result)
	}
	return wrapError(req.Get(url))
}

func (c *Client) post(ctx context.Context, url string, body, result interface{}) error {
	req := c.rc.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	return wrapError(req.Post(url))
}

func (c *Client) delete(ctx context.Context, url string) error {
	return wrapError(c.rc.R().SetContext(ctx).Delete(url))
}

func wrapError(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if res.IsError() {
		return &APIError{
			Code:   res.StatusCode(),
			Status: res.Status(),
			Detail: string(res.Body()),
		}
	}
	return nil
}
