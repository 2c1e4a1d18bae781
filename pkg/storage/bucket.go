package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PublicURLMarker is the path segment identifying URLs served from a managed bucket.
const PublicURLMarker = "/storage/v1/object/public/"

// ObjectInfo describes one stored object returned by List.
type ObjectInfo struct {
	Name      string     `json:"name"`
	ID        *string    `json:"id"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// BucketClient talks to an S3-gateway-style storage API
// (upload, list, remove, public and signed-upload URLs per bucket).
type BucketClient struct {
	baseURL    string
	bucket     string
	serviceKey string
	httpClient *http.Client
}

// NewBucketClient builds a client for one bucket. baseURL points at the
// storage API root, e.g. https://project.example.com/storage/v1.
func NewBucketClient(baseURL, bucket, serviceKey string) *BucketClient {
	return &BucketClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Bucket returns the bucket name the client is bound to.
func (c *BucketClient) Bucket() string {
	return c.bucket
}

// Upload stores the object under path with the given content type.
func (c *BucketClient) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	endpoint := fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, encodePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload object: %s", readAPIError(resp))
	}
	return nil
}

// List returns objects under prefix whose names contain search.
func (c *BucketClient) List(ctx context.Context, prefix, search string) ([]ObjectInfo, error) {
	endpoint := fmt.Sprintf("%s/object/list/%s", c.baseURL, c.bucket)
	body, err := json.Marshal(map[string]interface{}{
		"prefix": prefix,
		"search": search,
		"limit":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("encode list request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list objects: %s", readAPIError(resp))
	}
	var objects []ObjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return objects, nil
}

// Remove deletes the given object paths. Missing objects are not an error.
func (c *BucketClient) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	endpoint := fmt.Sprintf("%s/object/%s", c.baseURL, c.bucket)
	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("encode remove request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build remove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remove objects: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("remove objects: %s", readAPIError(resp))
	}
	return nil
}

// PublicURL resolves the durable public URL for an object path.
func (c *BucketClient) PublicURL(path string) string {
	root := strings.TrimSuffix(c.baseURL, "/storage/v1")
	return fmt.Sprintf("%s%s%s/%s", root, PublicURLMarker, c.bucket, encodePath(path))
}

// CreateSignedUploadURL asks the storage API for a one-shot direct-upload URL.
func (c *BucketClient) CreateSignedUploadURL(ctx context.Context, path string) (string, error) {
	endpoint := fmt.Sprintf("%s/object/upload/sign/%s/%s", c.baseURL, c.bucket, encodePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign upload url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sign upload url: %s", readAPIError(resp))
	}
	var signed struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("decode sign response: %w", err)
	}
	if strings.HasPrefix(signed.URL, "/") {
		return c.baseURL + signed.URL, nil
	}
	return signed.URL, nil
}

// ObjectPathFromURL extracts the bucket-relative object path from a public
// URL, or returns false when the URL is not served from this bucket.
func (c *BucketClient) ObjectPathFromURL(raw string) (string, bool) {
	return ObjectPathFromURL(raw, c.bucket)
}

// ObjectPathFromURL reports whether raw points into the given managed bucket
// and returns the decoded object path when it does.
func ObjectPathFromURL(raw, bucket string) (string, bool) {
	idx := strings.Index(raw, PublicURLMarker)
	if idx < 0 {
		return "", false
	}
	rest := raw[idx+len(PublicURLMarker):]
	prefix := bucket + "/"
	if !strings.HasPrefix(rest, prefix) {
		return "", false
	}
	path := strings.TrimPrefix(rest, prefix)
	if cut := strings.IndexAny(path, "?#"); cut >= 0 {
		path = path[:cut]
	}
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return path, true
	}
	return decoded, true
}

func (c *BucketClient) authorize(req *http.Request) {
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}
}

func encodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func readAPIError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		if apiErr.Message != "" {
			return fmt.Sprintf("%s: %s", resp.Status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Sprintf("%s: %s", resp.Status, apiErr.Error)
		}
	}
	return fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
}
