package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/logging"
)

const maxErrorBody = 64 << 10

// HTTPClient implements Client against the REST API.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger
}

type Option func(*HTTPClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithTimeout bounds every request, body included.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *HTTPClient) { c.tokens = ts }
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	c := &HTTPClient{
		baseURL: u,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SetTokenSource attaches the credential provider. It must be called before
// the client is shared between goroutines.
func (c *HTTPClient) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

type call struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
	kinds       statusKinds
}

// do sends the request and returns the response on a 2xx status. Any other
// outcome is turned into an error and the body is closed.
func (c *HTTPClient) do(ctx context.Context, cl call) (*http.Response, error) {
	u := c.baseURL.JoinPath(cl.path)

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), cl.body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	if cl.auth && c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set(common.AuthorizationHeader, common.FormatToken(tok))
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug(ctx, "request failed", "method", cl.method, "path", cl.path, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, cl.method, cl.path, err)
	}
	c.log.Debug(ctx, "request", "method", cl.method, "path", cl.path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	apiErr := decodeAPIError(resp, cl.kinds)
	if apiErr.Status == http.StatusUnauthorized && apiErr.Detail == common.InvalidTokenDetail {
		apiErr.kind = ErrInvalidToken
		if c.tokens != nil {
			c.log.Info(ctx, "server rejected token, dropping session")
			c.tokens.Invalidate()
		}
	}
	return nil, apiErr
}

func (c *HTTPClient) doJSON(ctx context.Context, cl call, in, out any) error {
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		cl.body = bytes.NewReader(b)
		cl.contentType = "application/json"
	}

	resp, err := c.do(ctx, cl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeBody(ctx, resp.Body, cl.path, out)
}

// decodeBody reads a JSON success body. A body cut short by cancellation is a
// transport failure, anything else unreadable is the server's fault.
func decodeBody(ctx context.Context, r io.Reader, path string, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return fmt.Errorf("%w: decode %s response: %w", ErrServer, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, kinds statusKinds) *APIError {
	e := &APIError{Status: resp.StatusCode, kind: mapStatus(resp.StatusCode, kinds)}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "<") && len(text) < 512 {
			e.Detail = text
		}
		return e
	}

	for k, v := range raw {
		var s string
		if k == "detail" {
			if json.Unmarshal(v, &s) == nil {
				e.Detail = s
			}
			continue
		}
		var list []string
		switch {
		case json.Unmarshal(v, &list) == nil:
		case json.Unmarshal(v, &s) == nil:
			list = []string{s}
		default:
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string][]string)
		}
		e.Fields[k] = list
	}
	return e
}

var loginKinds = statusKinds{
	http.StatusBadRequest:   ErrInvalidCredentials,
	http.StatusUnauthorized: ErrInvalidCredentials,
}

var ownerKinds = statusKinds{http.StatusForbidden: ErrNotOwner}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (string, error) {
	in := map[string]string{"username": username, "password": password}
	var out struct {
		Key string `json:"key"`
	}
	err := c.doJSON(ctx, call{method: http.MethodPost, path: "/rest-auth/login/", kinds: loginKinds}, in, &out)
	if err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", fmt.Errorf("%w: login response has no key", ErrServer)
	}
	return out.Key, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.doJSON(ctx, call{method: http.MethodPost, path: "/rest-auth/logout/", auth: true}, nil, nil)
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) error {
	return c.doJSON(ctx, call{method: http.MethodPost, path: "/rest-auth/registration/"}, req, nil)
}

func (c *HTTPClient) CurrentUser(ctx context.Context) (*models.Identity, error) {
	var out models.Identity
	if err := c.doJSON(ctx, call{method: http.MethodGet, path: "/rest-auth/user", auth: true}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListOwned(ctx context.Context) ([]models.DataAccess, error) {
	return c.list(ctx, "/data-accesses/owned")
}

func (c *HTTPClient) ListGranted(ctx context.Context) ([]models.DataAccess, error) {
	return c.list(ctx, "/data-accesses/granted")
}

func (c *HTTPClient) list(ctx context.Context, path string) ([]models.DataAccess, error) {
	var out []models.DataAccess
	if err := c.doJSON(ctx, call{method: http.MethodGet, path: path, auth: true}, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = out[i].Clone()
	}
	if out == nil {
		out = []models.DataAccess{}
	}
	return out, nil
}

func recordPath(id int64, suffix string) string {
	return "/data-accesses/" + strconv.FormatInt(id, 10) + suffix
}

func (c *HTTPClient) Get(ctx context.Context, id int64) (models.DataAccess, error) {
	var out models.DataAccess
	if err := c.doJSON(ctx, call{method: http.MethodGet, path: recordPath(id, ""), auth: true}, nil, &out); err != nil {
		return models.DataAccess{}, err
	}
	return out.Clone(), nil
}

func (c *HTTPClient) Create(ctx context.Context, payload models.Blob) (models.DataAccess, error) {
	name := payload.Name
	if name == "" {
		name = "data.bin"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return models.DataAccess{}, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return models.DataAccess{}, fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return models.DataAccess{}, fmt.Errorf("build multipart: %w", err)
	}

	resp, err := c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/data-accesses/create",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		auth:        true,
	})
	if err != nil {
		return models.DataAccess{}, err
	}
	defer resp.Body.Close()

	var out models.DataAccess
	if err := decodeBody(ctx, resp.Body, "/data-accesses/create", &out); err != nil {
		return models.DataAccess{}, err
	}
	return out.Clone(), nil
}

func (c *HTTPClient) UpdateReaders(ctx context.Context, id int64, readers []string) (models.DataAccess, error) {
	if readers == nil {
		readers = []string{}
	}
	in := map[string][]string{"readers": readers}
	var out models.DataAccess
	if err := c.doJSON(ctx, call{method: http.MethodPost, path: recordPath(id, "/"), auth: true, kinds: ownerKinds}, in, &out); err != nil {
		return models.DataAccess{}, err
	}
	return out.Clone(), nil
}

func (c *HTTPClient) Delete(ctx context.Context, id int64) error {
	return c.doJSON(ctx, call{method: http.MethodDelete, path: recordPath(id, ""), auth: true, kinds: ownerKinds}, nil, nil)
}

func (c *HTTPClient) Download(ctx context.Context, id int64) (models.Blob, error) {
	resp, err := c.do(ctx, call{method: http.MethodGet, path: recordPath(id, "/download"), auth: true})
	if err != nil {
		return models.Blob{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Blob{}, fmt.Errorf("%w: read payload: %w", ErrTransport, err)
	}

	name := fmt.Sprintf("data-%d", id)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return models.Blob{Name: name, Data: data}, nil
}

func (c *HTTPClient) Usernames(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.doJSON(ctx, call{method: http.MethodGet, path: "/authorization/usernames", auth: true}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
