// Package pubsub wraps the Pub/Sub v2 client with the marketplace's topic and
// subscription naming.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/farmolink/farmolink-backend/pkg/config"
	"github.com/farmolink/farmolink-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client hands out publishers per topic and the domain subscriber. Publishers
// batch in the background, so they are cached and stopped on Close.
type Client struct {
	api       *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and fails fast when the domain topic or subscription is
// missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	api, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		api:        api,
		projectID:  projectID,
		cfg:        cfg,
		publishers: make(map[string]*pubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        cfg.DomainTopic,
			"subscription": cfg.DomainSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline credentials, then a key file, then ADC.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// Ping checks that the domain topic and subscription both exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errNotInitialized
	}
	topic := TopicResourceName(c.projectID, c.cfg.DomainTopic)
	if topic == "" {
		return errors.New("pubsub domain topic is required")
	}
	if _, err := c.api.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
		return lookupError("topic", c.cfg.DomainTopic, err)
	}

	sub := SubscriptionResourceName(c.projectID, c.cfg.DomainSubscription)
	if sub == "" {
		return errors.New("pubsub domain subscription is required")
	}
	if _, err := c.api.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub}); err != nil {
		return lookupError("subscription", c.cfg.DomainSubscription, err)
	}
	return nil
}

func lookupError(kind, name string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// DomainSubscription is the subscriber the worker consumes.
func (c *Client) DomainSubscription() *pubsub.Subscriber {
	if c == nil || c.api == nil {
		return nil
	}
	name := SubscriptionResourceName(c.projectID, c.cfg.DomainSubscription)
	if name == "" {
		return nil
	}
	return c.api.Subscriber(name)
}

// Publisher returns the cached publisher for a topic id or resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.api == nil {
		return nil
	}
	name := TopicResourceName(c.projectID, topic)
	if name == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[name]
	if !ok {
		pub = c.api.Publisher(name)
		c.publishers[name] = pub
	}
	return pub
}

// Close flushes pending publishes before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.api.Close()
}

func SubscriptionResourceName(projectID, name string) string {
	return resourceName(projectID, "subscriptions", name)
}

func TopicResourceName(projectID, name string) string {
	return resourceName(projectID, "topics", name)
}

// resourceName expands a bare id to projects/<p>/<kind>/<id>. Names that are
// already fully qualified pass through unchanged.
func resourceName(projectID, kind, name string) string {
	id := strings.TrimSpace(name)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	project := strings.TrimSpace(projectID)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + id
}
