// Package backend is the REST client for the flashcard generation service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/conorfennell/flashstudy/internal/domain"
)

const (
	topicPath  = "topic"
	uploadPath = "upload"

	// sniffLen is how much of an upload is inspected to decide whether it is a PDF.
	sniffLen = 3072
	pdfMIME  = "application/pdf"
)

// ErrNotPDF is returned by UploadPDF when the content is not a PDF document.
var ErrNotPDF = errors.New("file is not a PDF")

// CardsRequest asks the backend to generate material for a typed topic.
type CardsRequest struct {
	ID    string `json:"id"`
	Topic string `json:"topic" validate:"required"`
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if body == "" {
		body = "Unknown error"
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, body)
}

// IsBadRequest reports whether err is a 400 response from the backend.
func IsBadRequest(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusBadRequest
}

// Client talks to the generation backend. It is safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	validate *validator.Validate
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRateLimit allows perSecond requests with the given burst. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// New returns a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL:  u,
		http:     &http.Client{Timeout: 2 * time.Minute},
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchCards posts a topic and returns the generated material. An empty request ID gets a fresh UUID.
func (c *Client) FetchCards(ctx context.Context, req CardsRequest) (*domain.Material, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid cards request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cards request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(topicPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build cards request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	slog.Debug("Requesting cards", "id", req.ID, "topic", req.Topic)
	return c.do(httpReq)
}

// UploadPDF sends a PDF as the multipart part "file" and returns the generated material.
// Content that does not sniff as a PDF is rejected with ErrNotPDF before any request is made.
func (c *Client) UploadPDF(ctx context.Context, filename string, r io.Reader) (*domain.Material, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	head = head[:n]
	if mt := mimetype.Detect(head); !mt.Is(pdfMIME) {
		return nil, fmt.Errorf("%s (%s): %w", filename, mt.String(), ErrNotPDF)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	partHeader.Set("Content-Type", pdfMIME)
	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, io.MultiReader(bytes.NewReader(head), r)); err != nil {
		return nil, fmt.Errorf("failed to buffer %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(uploadPath), &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	slog.Debug("Uploading PDF", "file", filename, "bytes", buf.Len())
	return c.do(httpReq)
}

// FromTopic generates material for a typed topic.
func (c *Client) FromTopic(ctx context.Context, id, topic string) (*domain.Material, error) {
	return c.FetchCards(ctx, CardsRequest{ID: id, Topic: topic})
}

// FromPDF generates material from a PDF document.
func (c *Client) FromPDF(ctx context.Context, filename string, r io.Reader) (*domain.Material, error) {
	return c.UploadPDF(ctx, filename, r)
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: path}).String()
}

func (c *Client) do(req *http.Request) (*domain.Material, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var m domain.Material
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	if err := c.validate.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", req.URL.Path, err)
	}
	return &m, nil
}
