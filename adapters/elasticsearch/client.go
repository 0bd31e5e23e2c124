package elasticsearch

import (
	"context"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/chararch/gorollup"
)

// Config holds Elasticsearch client configuration
type Config struct {
	// Addresses are the Elasticsearch node URLs (e.g., http://elasticsearch:9200)
	Addresses []string

	// Username is the optional basic auth username
	Username string

	// Password is the optional basic auth password
	Password string

	// APIKey is the optional API key for authentication
	APIKey string

	// MaxRetries is the maximum number of retries for client operations (default: 3)
	MaxRetries int

	// PingTimeout is the timeout for ping verification (default: 5s)
	PingTimeout time.Duration
}

// SetDefaults applies default values to the config if not set
func (c *Config) SetDefaults() {
	if len(c.Addresses) == 0 {
		c.Addresses = []string{"http://localhost:9200"}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
}

// NewClient creates an Elasticsearch client and verifies the connection with a ping
func NewClient(ctx context.Context, cfg Config) (*es.Client, error) {
	cfg.SetDefaults()

	addresses := make([]string, len(cfg.Addresses))
	for i, a := range cfg.Addresses {
		addresses[i] = normalizeURL(a)
	}

	clientConfig := es.Config{
		Addresses:  addresses,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.APIKey != "" {
		clientConfig.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	client, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "create elasticsearch client failed", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "ping elasticsearch:%v failed", addresses, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "ping elasticsearch:%v failed, status:%v", addresses, res.Status())
	}
	gorollup.DefaultLogger.Info(ctx, "elasticsearch connection established, addresses:%v", addresses)
	return client, nil
}

// normalizeURL adds the http:// prefix if missing
func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}
