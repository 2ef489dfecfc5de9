// Package estimator calls the external calorie-estimation service.
package estimator

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
	"time"

	"calorie_tracker/internal/domain"
)

// maxResponseBytes bounds how much of the collaborator's reply is read
const maxResponseBytes = 1 << 20

// Estimate is the collaborator's raw "calories" value, not yet interpreted
type Estimate struct {
	Raw json.RawMessage
}

// Client posts images to the estimation endpoint
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type predictResponse struct {
	Calories json.RawMessage `json:"calories"`
	Error    string          `json:"error"`
}

// Estimate sends one multipart request carrying the image and prompt.
// Every failure comes back as a *domain.UpstreamError.
func (c *Client) Estimate(ctx context.Context, image []byte, mimeType, prompt string) (Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := encodeForm(image, mimeType, prompt)
	if err != nil {
		return Estimate{}, upstream(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Estimate{}, upstream(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Estimate{}, upstream(fmt.Errorf("call estimator: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Estimate{}, upstream(fmt.Errorf("read estimator response: %w", err))
	}

	var pr predictResponse
	decodeErr := json.Unmarshal(raw, &pr)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && pr.Error != "" {
			return Estimate{}, upstream(fmt.Errorf("estimator returned %d: %s", resp.StatusCode, pr.Error))
		}
		return Estimate{}, upstream(fmt.Errorf("estimator returned %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return Estimate{}, upstream(fmt.Errorf("estimator returned non-JSON body: %w", decodeErr))
	}
	if pr.Error != "" {
		return Estimate{}, upstream(errors.New(pr.Error))
	}
	if len(pr.Calories) == 0 || string(pr.Calories) == "null" {
		return Estimate{}, upstream(errors.New("estimator response has no calories field"))
	}
	return Estimate{Raw: pr.Calories}, nil
}

// Ping checks that the collaborator answers on its base URL
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	base, err := url.Parse(c.endpoint)
	if err != nil {
		return upstream(err)
	}
	base.Path = "/"
	base.RawQuery = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return upstream(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return upstream(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		return upstream(fmt.Errorf("estimator health returned %d", resp.StatusCode))
	}
	return nil
}

func encodeForm(image []byte, mimeType, prompt string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="capture"`)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("prompt", prompt); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func upstream(err error) error {
	return &domain.UpstreamError{Op: "estimator", Cause: err}
}
