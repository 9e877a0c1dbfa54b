// Package gcs is a thin JSON-API client for the prescription media bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

const (
	readWriteScope = "https://www.googleapis.com/auth/devstorage.read_write"
	apiBase        = "https://storage.googleapis.com"
	requestTimeout = 30 * time.Second
	pingTimeout    = 5 * time.Second
)

var (
	// ErrObjectNotFound is returned when the bucket has no object at the given name.
	ErrObjectNotFound = errors.New("gcs object not found")

	errNotInitialized = errors.New("gcs client not initialized")
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Client struct {
	http    *http.Client
	bucket  string
	baseURL string
}

// NewClient resolves credentials from cfg (inline JSON, then key file, then
// application default credentials) and checks bucket access before returning.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	source, err := tokenSource(ctx, gcp)
	if err != nil {
		return nil, err
	}
	client := newClient(cfg.BucketName, apiBase, source, http.DefaultTransport)
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.BucketName), "gcs client initialized")
	}
	return client, nil
}

func tokenSource(ctx context.Context, gcp config.GCPConfig) (oauth2.TokenSource, error) {
	keyJSON := []byte(gcp.CredentialsJSON)
	if len(keyJSON) == 0 && gcp.ApplicationCredentials != "" {
		data, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		keyJSON = data
	}
	if len(keyJSON) == 0 {
		source, err := google.DefaultTokenSource(ctx, readWriteScope)
		if err != nil {
			return nil, fmt.Errorf("default credentials: %w", err)
		}
		return source, nil
	}
	jwtCfg, err := google.JWTConfigFromJSON(keyJSON, readWriteScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	// Token fetches outlive any single request, so they get a background context.
	return jwtCfg.TokenSource(context.Background()), nil
}

func newClient(bucket, baseURL string, source oauth2.TokenSource, base http.RoundTripper) *Client {
	return &Client{
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, source),
				Base:   base,
			},
		},
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectsURL()+"?maxResults=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, "object check")
}

// Upload stores body under object in the default bucket and returns the
// object's public URL.
func (c *Client) Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error) {
	if c == nil || c.http == nil {
		return "", errNotInitialized
	}
	if strings.TrimSpace(object) == "" {
		return "", errors.New("object name is required")
	}
	target := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.baseURL, url.PathEscape(c.bucket), url.QueryEscape(object))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.do(req, "upload"); err != nil {
		return "", err
	}
	return c.PublicURL(object), nil
}

// DeleteObject removes object from the default bucket. Missing objects are
// reported as ErrObjectNotFound.
func (c *Client) DeleteObject(ctx context.Context, object string) error {
	if c == nil || c.http == nil {
		return errNotInitialized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectsURL()+"/"+url.PathEscape(object), nil)
	if err != nil {
		return err
	}
	return c.do(req, "delete")
}

// PublicURL is the browser-facing address of object in the default bucket.
func (c *Client) PublicURL(object string) string {
	return apiBase + "/" + c.bucket + "/" + object
}

func (c *Client) objectsURL() string {
	return c.baseURL + "/storage/v1/b/" + url.PathEscape(c.bucket) + "/o"
}

// do sends req and maps any non-2xx status to an error carrying a short
// excerpt of the response body.
func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gcs %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if resp.StatusCode == http.StatusNotFound && req.Method == http.MethodDelete {
		return ErrObjectNotFound
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(excerpt)); msg != "" {
		return fmt.Errorf("gcs %s failed: %s: %s", op, resp.Status, msg)
	}
	return fmt.Errorf("gcs %s failed: %s", op, resp.Status)
}
