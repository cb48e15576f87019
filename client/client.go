// Package client is a Go client for the pagekit HTTP API.
//
// Authentication state is explicit: Login returns a Session, and every
// admin call takes the Session to use. Nothing is cached between calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/eringen/pagekit"
)

// Client talks to one pagekit server.
type Client struct {
	// BaseURL is the API root, e.g. "http://localhost:5001/api".
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client for baseURL with a 30 second HTTP timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Session carries the bearer token returned by Login.
type Session struct {
	Token string
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pagekit: %d %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err means the session is missing,
// invalid, or expired and the caller should log in again.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

var errNoSession = errors.New("pagekit: not logged in")

// LoginResponse is returned by Login.
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// VerifyResponse is returned by Verify.
type VerifyResponse struct {
	Valid bool           `json:"valid"`
	User  pagekit.Claims `json:"user"`
}

// HealthResponse is returned by Health.
type HealthResponse struct {
	Status string `json:"status"`
	Server string `json:"server"`
}

// UploadResponse is returned by UploadImage.
type UploadResponse struct {
	Success      bool   `json:"success"`
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	OriginalName string `json:"originalName"`
	Message      string `json:"message"`
}

// SaveResponse is returned by SavePageData.
type SaveResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    pagekit.PageData `json:"data"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login exchanges the admin credentials for a Session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	body := map[string]string{"username": username, "password": password}
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, body, &resp); err != nil {
		return Session{}, err
	}
	return Session{Token: resp.Token}, nil
}

// Verify checks that s is still accepted by the server.
func (c *Client) Verify(ctx context.Context, s Session) (VerifyResponse, error) {
	var resp VerifyResponse
	err := c.doJSON(ctx, http.MethodGet, "/auth/verify", &s, nil, &resp)
	return resp, err
}

// Health calls the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp, err
}

// UploadImage sends r as the "image" form field. contentType must be one of
// the accepted image types; when empty it is guessed from filename.
func (c *Client) UploadImage(ctx context.Context, s Session, filename, contentType string, r io.Reader) (UploadResponse, error) {
	if s.Token == "" {
		return UploadResponse{}, errNoSession
	}
	if contentType == "" {
		contentType = contentTypeFor(filename)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return UploadResponse{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResponse{}, err
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/services/upload", &s, &buf)
	if err != nil {
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	err = c.do(req, &resp)
	return resp, err
}

// ListImages returns every file in the server's upload directory.
func (c *Client) ListImages(ctx context.Context, s Session) ([]pagekit.ImageFile, error) {
	var resp struct {
		Images []pagekit.ImageFile `json:"images"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/services/images", &s, nil, &resp)
	return resp.Images, err
}

// DeleteImage removes filename from the server's upload directory.
func (c *Client) DeleteImage(ctx context.Context, s Session, filename string) error {
	var resp messageResponse
	return c.doJSON(ctx, http.MethodDelete, "/services/images/"+url.PathEscape(filename), &s, nil, &resp)
}

// GetPageData fetches the public page document.
func (c *Client) GetPageData(ctx context.Context) (pagekit.PageData, error) {
	var data pagekit.PageData
	err := c.doJSON(ctx, http.MethodGet, "/content/page-data", nil, nil, &data)
	return data, err
}

// SavePageData replaces the page document. data may be a pagekit.PageData,
// a map, or json.RawMessage; missing fields take the server defaults.
func (c *Client) SavePageData(ctx context.Context, s Session, data any) (SaveResponse, error) {
	var resp SaveResponse
	err := c.doJSON(ctx, http.MethodPost, "/content/page-data", &s, data, &resp)
	return resp, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, s *Session, in, out any) error {
	if s != nil && s.Token == "" {
		return errNoSession
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, s, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, s *Session, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s != nil {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return "application/octet-stream"
}
