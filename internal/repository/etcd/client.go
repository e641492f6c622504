// Package etcd provides etcd client functionality for distributed coordination.
package etcd

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/config"
)

// vmRegistryPrefix is where the VM lifecycle manager publishes the set of
// VMs eligible for swap management. Keys are vmRegistryPrefix + vmID.
const vmRegistryPrefix = "/swapd/vms/"

// Client wraps an etcd client with leader election and VM registry watching.
type Client struct {
	client  *clientv3.Client
	session *concurrency.Session
	logger  *zap.Logger
}

// NewClient creates a new etcd client.
func NewClient(cfg config.EtcdConfig, logger *zap.Logger) (*Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	// Create a session for distributed coordination
	session, err := concurrency.NewSession(client, concurrency.WithTTL(30))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	logger.Info("Connected to etcd", zap.Strings("endpoints", cfg.Endpoints))

	return &Client{
		client:  client,
		session: session,
		logger:  logger,
	}, nil
}

// Close closes the etcd client and session.
func (c *Client) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	return c.client.Close()
}

// Health checks if etcd is reachable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.Status(ctx, c.client.Endpoints()[0])
	return err
}

// =============================================================================
// VM Registry
// =============================================================================

// VMEvent signals a VM joining or leaving the swap-managed set.
type VMEvent struct {
	VMID    string
	Removed bool
}

// ListVMs returns the IDs of all VMs currently in the registry.
func (c *Client) ListVMs(ctx context.Context) ([]string, error) {
	resp, err := c.client.Get(ctx, vmRegistryPrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list VM registry: %w", err)
	}

	ids := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ids = append(ids, strings.TrimPrefix(string(kv.Key), vmRegistryPrefix))
	}
	return ids, nil
}

// WatchVMs watches the VM registry and emits an event for every VM added or
// removed. The channel is closed when ctx is cancelled.
func (c *Client) WatchVMs(ctx context.Context) <-chan VMEvent {
	events := make(chan VMEvent, 10)

	go func() {
		defer close(events)

		watchCh := c.client.Watch(ctx, vmRegistryPrefix, clientv3.WithPrefix())
		for {
			select {
			case <-ctx.Done():
				return
			case resp, ok := <-watchCh:
				if !ok {
					return
				}
				for _, ev := range resp.Events {
					events <- VMEvent{
						VMID:    strings.TrimPrefix(string(ev.Kv.Key), vmRegistryPrefix),
						Removed: ev.Type == clientv3.EventTypeDelete,
					}
				}
			}
		}
	}()

	return events
}

// =============================================================================
// Leader Election
// =============================================================================

// Leader represents a leader election participant. The leadership flag is
// written by the campaign goroutine and read from the engine's decision
// cycle, so it is atomic.
type Leader struct {
	election *concurrency.Election
	client   *Client
	name     string
	isLeader atomic.Bool
}

// CampaignForLeader starts a leader election campaign in the background.
// The returned Leader reports leadership through IsLeader.
func (c *Client) CampaignForLeader(ctx context.Context, name string) (*Leader, error) {
	election := concurrency.NewElection(c.session, fmt.Sprintf("/leaders/%s", name))

	leader := &Leader{
		election: election,
		client:   c,
		name:     name,
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := election.Campaign(ctx, fmt.Sprintf("%d", c.session.Lease())); err != nil {
					if ctx.Err() != nil {
						return
					}
					c.logger.Warn("Leader campaign failed, retrying", zap.Error(err))
					time.Sleep(5 * time.Second)
					continue
				}

				leader.isLeader.Store(true)
				c.logger.Info("Became leader", zap.String("name", name))

				// Wait until we lose leadership
				select {
				case <-ctx.Done():
					return
				case <-c.session.Done():
					leader.isLeader.Store(false)
					c.logger.Info("Lost leadership", zap.String("name", name))
					return
				}
			}
		}
	}()

	return leader, nil
}

// IsLeader returns true if this instance is currently the leader.
func (l *Leader) IsLeader() bool {
	return l.isLeader.Load()
}

// Resign resigns from leadership.
func (l *Leader) Resign(ctx context.Context) error {
	if l.election == nil || !l.isLeader.Load() {
		return nil
	}

	if err := l.election.Resign(ctx); err != nil {
		return fmt.Errorf("failed to resign: %w", err)
	}

	l.isLeader.Store(false)
	l.client.logger.Info("Resigned from leadership", zap.String("name", l.name))
	return nil
}
