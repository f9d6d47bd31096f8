package moodle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	LoginPath  = "/login/index.php"
	LogoutPath = "/login/logout.php"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

var (
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrLoginTokenMissing = errors.New("login token not found on login page")
	ErrLoginFailed       = errors.New("login rejected")
)

type ClientOptions struct {
	BaseUrl   string
	Timeout   time.Duration
	UserAgent string
}

func newRestyClient(opts ClientOptions) (*resty.Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseUrl)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(timeout)
	return client, nil
}

// WebClient browses the site the way a person does: html pages and session cookies.
type WebClient struct {
	Http *resty.Client
}

func NewWebClient(opts ClientOptions) (*WebClient, error) {
	client, err := newRestyClient(opts)
	if err != nil {
		return nil, err
	}
	c := &WebClient{Http: client}
	if err := c.ResetSession(); err != nil {
		return nil, err
	}
	return c, nil
}

// ResetSession drops every cookie so the next request starts an anonymous session.
func (c *WebClient) ResetSession() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	c.Http.SetCookieJar(jar)
	return nil
}

// Page requests a page and fails on any status other than 200.
func (c *WebClient) Page(ctx context.Context, path string, query map[string]string) (*resty.Response, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return res, fmt.Errorf("%w: %d for %s", ErrUnexpectedStatus, res.StatusCode(), path)
	}
	return res, nil
}

func (c *WebClient) Document(ctx context.Context, path string, query map[string]string) (*goquery.Document, error) {
	res, err := c.Page(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return documentFromResponse(res)
}

// Login submits the login form and returns the session key found on the resulting page.
// An empty session key with a nil error means the site accepted the credentials
// but did not expose a key.
func (c *WebClient) Login(ctx context.Context, username, password string) (string, error) {
	doc, err := c.Document(ctx, LoginPath, nil)
	if err != nil {
		return "", fmt.Errorf("fetch login page: %w", err)
	}

	logintoken := LoginToken(doc)
	if logintoken == "" {
		return "", ErrLoginTokenMissing
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":   username,
			"password":   password,
			"logintoken": logintoken,
		}).
		Post(LoginPath)
	if err != nil {
		return "", fmt.Errorf("submit login form: %w", err)
	}

	body := res.String()
	if res.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w: %d for %s", ErrUnexpectedStatus, res.StatusCode(), LoginPath)
	}
	if HasLoginErrors(body) {
		return "", fmt.Errorf("%w for user %s", ErrLoginFailed, username)
	}

	return Sesskey(body), nil
}

func (c *WebClient) Logout(ctx context.Context, sesskey string) error {
	query := map[string]string{}
	if sesskey != "" {
		query["sesskey"] = sesskey
	}
	_, err := c.Page(ctx, LogoutPath, query)
	return err
}

func documentFromResponse(res *resty.Response) (*goquery.Document, error) {
	var base *url.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		base = res.RawResponse.Request.URL
	}
	doc, err := ParseDocument(res.Body(), base)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
