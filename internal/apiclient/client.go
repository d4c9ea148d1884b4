package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"encodefleet/internal/api"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("daemon API unavailable")

const defaultTimeout = 30 * time.Second

// Error is an error envelope returned by the daemon.
type Error struct {
	Status  int
	Code    api.Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client calls the daemon API.
type Client struct {
	base     *url.URL
	http     *http.Client
	password string

	mu    sync.Mutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken seeds the client with an existing session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a client for bind, which may be "host:port" or a full URL.
func New(bind, password string, opts ...Option) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""

	c := &Client{
		base:     base,
		http:     &http.Client{Timeout: defaultTimeout},
		password: password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListOptions selects rows and the page of a list call.
type ListOptions struct {
	Filters url.Values
	Limit   int
	Page    int
}

func (o ListOptions) values() url.Values {
	values := url.Values{}
	for key, vs := range o.Filters {
		for _, v := range vs {
			values.Add(key, v)
		}
	}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Page > 0 {
		values.Set("page", strconv.Itoa(o.Page))
	}
	return values
}

// Page is one page of a list call.
type Page[T any] struct {
	Items      []T
	Pagination *api.Pagination
}

type envelope struct {
	Metadata   api.Metadata    `json:"metadata"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Pagination *api.Pagination `json:"pagination"`
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	public bool
}

// Login exchanges the password for a session token and caches it.
func (c *Client) Login(ctx context.Context) (api.Session, error) {
	env, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   "/auth",
		body:   api.AuthRequest{Password: c.password},
		public: true,
	}, "")
	if err != nil {
		return api.Session{}, err
	}
	var session api.Session
	if err := json.Unmarshal(env.Data, &session); err != nil {
		return api.Session{}, fmt.Errorf("decode session: %w", err)
	}
	c.mu.Lock()
	c.token = session.Token
	c.mu.Unlock()
	return session, nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// call sends req, logging in first when needed and once more if the cached
// session was rejected.
func (c *Client) call(ctx context.Context, req request) (*envelope, error) {
	if req.public {
		return c.send(ctx, req, "")
	}
	token := c.currentToken()
	fresh := false
	if token == "" {
		session, err := c.Login(ctx)
		if err != nil {
			return nil, err
		}
		token, fresh = session.Token, true
	}
	env, err := c.send(ctx, req, token)
	var apiErr *Error
	if !fresh && errors.As(err, &apiErr) && apiErr.Code == api.CodeUnauthorized {
		session, loginErr := c.Login(ctx)
		if loginErr != nil {
			return nil, loginErr
		}
		return c.send(ctx, req, session.Token)
	}
	return env, err
}

func (c *Client) send(ctx context.Context, req request, token string) (*envelope, error) {
	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := *c.base
	endpoint.Path = c.base.Path + req.path
	if len(req.query) > 0 {
		endpoint.RawQuery = req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if IsUnavailable(err) {
			return nil, fmt.Errorf("%w at %s: %v", ErrUnavailable, c.base.Host, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%s %s returned status %d with undecodable body: %w", req.method, req.path, resp.StatusCode, err)
	}
	if env.Metadata.Status == api.StatusError || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{Status: resp.StatusCode, Code: api.CodeInternal, Message: http.StatusText(resp.StatusCode)}
		if env.Metadata.Error != nil {
			apiErr.Code = env.Metadata.Error.Code
			apiErr.Message = env.Metadata.Error.Message
		}
		return nil, apiErr
	}
	return &env, nil
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func decodeData[T any](env *envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode response data: %w", err)
	}
	return out, nil
}

func do[T any](ctx context.Context, c *Client, req request) (T, error) {
	out, _, err := doMessage[T](ctx, c, req)
	return out, err
}

func doMessage[T any](ctx context.Context, c *Client, req request) (T, string, error) {
	var zero T
	env, err := c.call(ctx, req)
	if err != nil {
		return zero, "", err
	}
	out, err := decodeData[T](env)
	return out, env.Message, err
}

func list[T any](ctx context.Context, c *Client, path string, opts ListOptions) (Page[T], error) {
	env, err := c.call(ctx, request{method: http.MethodGet, path: path, query: opts.values()})
	if err != nil {
		return Page[T]{}, err
	}
	items, err := decodeData[[]T](env)
	if err != nil {
		return Page[T]{}, err
	}
	return Page[T]{Items: items, Pagination: env.Pagination}, nil
}
