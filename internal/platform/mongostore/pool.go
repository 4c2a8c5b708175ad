// Package mongostore owns the MongoDB client used by the document store repositories.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tailorline/storefront/internal/platform/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	pingTimeout           = 2 * time.Second
	disconnectTimeout     = 5 * time.Second
)

// ErrNotConnected is returned when the pool is used before Connect or after Close.
var ErrNotConnected = errors.New("mongostore: pool is not connected")

// Pool wraps a connected mongo.Client and the configured database. It is created in main and handed to
// repositories so the connection lifecycle stays explicit.
type Pool struct {
	cfg config.MongoConfig

	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
}

// NewPool returns an unconnected pool.
func NewPool(cfg config.MongoConfig) *Pool {
	return &Pool{cfg: cfg}
}

// Connect dials the server and verifies it with a ping against the primary. A failed ping disconnects again.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}

	timeout := p.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(p.cfg.URI).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return fmt.Errorf("mongostore: connect: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return fmt.Errorf("mongostore: ping: %w", err)
	}

	p.client = client
	p.db = client.Database(p.cfg.Database)
	return nil
}

// Database returns the configured database handle.
func (p *Pool) Database() (*mongo.Database, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrNotConnected
	}
	return p.db, nil
}

// Collection is a shorthand for Database().Collection(name).
func (p *Pool) Collection(name string) (*mongo.Collection, error) {
	db, err := p.Database()
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Ping checks connectivity for readiness probes.
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return client.Ping(pingCtx, readpref.Primary())
}

// Close disconnects the client. It is safe to call more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.db = nil
	p.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}
