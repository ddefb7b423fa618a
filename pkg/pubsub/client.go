package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/sweetshop-backend/pkg/config"
	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

var errNotInitialized = errors.New("pubsub client not initialized")

// Client owns the Pub/Sub connection for one process. Publishers are created once per topic and
// flushed on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails fast when a configured subscription is missing.
// Processes that only publish leave the subscription blank.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}

	ps, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: ps, projectID: project, cfg: cfg, publishers: map[string]*pubsub.Publisher{}}

	if err := c.verify(ctx, kindSubscription, cfg.InventorySubscription); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", project), "pubsub client initialized")
	}
	return c, nil
}

// Subscription returns a subscriber for an ID or full resource name, or nil when blank.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// InventorySubscription is the stock-alerts consumer's subscription.
func (c *Client) InventorySubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.InventorySubscription)
}

// Publisher returns the shared publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindTopic, name)
	if full == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.client.Publisher(full)
	c.publishers[full] = p
	return p
}

// Ping checks that every configured topic and subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	if err := c.verify(ctx, kindTopic, c.cfg.InventoryTopic, c.cfg.OrdersTopic); err != nil {
		return err
	}
	return c.verify(ctx, kindSubscription, c.cfg.InventorySubscription)
}

// Close flushes pending publishes before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Client) verify(ctx context.Context, kind resourceKind, names ...string) error {
	for _, name := range nonBlank(names...) {
		full := resourceName(c.projectID, kind, name)
		var err error
		switch kind {
		case kindTopic:
			_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		case kindSubscription:
			_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
		}
		if err := describeLookup(kind, name, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookup(kind resourceKind, name string, err error) error {
	singular := strings.TrimSuffix(string(kind), "s")
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", singular, name)
	default:
		return fmt.Errorf("checking %s %q: %w", singular, name, err)
	}
}

// resourceName expands a short ID to projects/<project>/<kind>/<id>. Full names pass through.
func resourceName(project string, kind resourceKind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+string(kind)+"/") {
		return name
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/" + string(kind) + "/" + name
}

func nonBlank(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
