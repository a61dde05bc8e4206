// Package qdrant implements the vector-store collaborator on Qdrant. All
// partitions live in one collection; the partition identifier is a payload
// key every query and deletion filters on.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

const (
	// DefaultHost is the default Qdrant host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultTimeout is the default operation timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultCollection holds every partition's chunks.
	DefaultCollection = "suri_chunks"
)

// ClientConfig holds configuration for the Qdrant client.
type ClientConfig struct {
	// Host is the Qdrant server host.
	Host string

	// Port is the Qdrant gRPC port.
	Port int

	// APIKey for authentication (optional).
	APIKey string

	// UseTLS enables TLS connection.
	UseTLS bool

	// Collection is the single collection holding all partitions.
	Collection string

	// VectorSize is the embedding dimension.
	VectorSize uint64

	// Timeout for operations.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:       DefaultHost,
		Port:       DefaultPort,
		Collection: DefaultCollection,
		VectorSize: 3072,
		Timeout:    DefaultTimeout,
	}
}

// ConfigFromURL parses a host:port or scheme://host:port URL into a config.
func ConfigFromURL(rawURL, apiKey, collection string, vectorSize uint64, timeout time.Duration) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	cfg.APIKey = apiKey
	if collection != "" {
		cfg.Collection = collection
	}
	if vectorSize > 0 {
		cfg.VectorSize = vectorSize
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}

	if rawURL == "" {
		return cfg, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Bare host:port form.
		u = &url.URL{Host: rawURL}
	}

	if host := u.Hostname(); host != "" {
		cfg.Host = host
	}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
		}
		cfg.Port = port
	}
	cfg.UseTLS = u.Scheme == "https"

	return cfg, nil
}

// Client wraps the Qdrant Go client with partition-scoped operations.
type Client struct {
	client *qdrant.Client
	config ClientConfig
	mu     sync.RWMutex
	closed bool
}

// NewClient creates a new Qdrant client wrapper.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.client.Close()
}

// HealthCheck verifies the Qdrant server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reply, err := c.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if reply.GetTitle() == "" {
		return fmt.Errorf("unexpected health check response")
	}

	return nil
}
