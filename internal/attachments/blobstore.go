package attachments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// StoredBlob is the handle returned by the external store after an upload.
type StoredBlob struct {
	URL       string
	ExpiresAt time.Time
}

// BlobStore uploads bytes to a time-boxed external file host.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, filename string, expiry time.Duration) (*StoredBlob, error)
}

// HTTPBlobStore talks to an upload endpoint that accepts multipart posts and
// returns {"url": "...", "expires_at": "..."}.
type HTTPBlobStore struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPBlobStore builds a store client. Endpoint must be non-empty.
func NewHTTPBlobStore(endpoint, apiKey string) *HTTPBlobStore {
	return &HTTPBlobStore{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

type uploadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Upload posts the file and returns its public link plus expiry.
func (s *HTTPBlobStore) Upload(ctx context.Context, data []byte, filename string, expiry time.Duration) (*StoredBlob, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.WriteField("expiry_seconds", strconv.FormatInt(int64(expiry/time.Second), 10)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if s.apiKey != "" {
		req.Header.Set("Authorization", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("blob store returned %d: %s", resp.StatusCode, payload)
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode blob store response: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("blob store returned no url")
	}
	if parsed.ExpiresAt.IsZero() {
		parsed.ExpiresAt = time.Now().Add(expiry)
	}
	return &StoredBlob{URL: parsed.URL, ExpiresAt: parsed.ExpiresAt}, nil
}
