package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/factsync/internal/logger"
)

var (
	// ErrStoreUnconfigured is permanent for the process: no host was given.
	ErrStoreUnconfigured = errors.New("store unconfigured")
	// ErrStoreConnection is transient: connect, liveness check or I/O failed.
	ErrStoreConnection = errors.New("store connection failure")
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("key not found")
)

// State is the observable connection state.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
)

// ConnectOptions defines how the store is reached.
type ConnectOptions struct {
	Addr         string        // Redis address (ex: "localhost:6379"), empty => inert
	User         string        // Optional username
	Password     string        // Optional password
	RedisDB      int           // Redis DB number
	DialTimeout  time.Duration // connection establishment timeout
	ReadTimeout  time.Duration // per-operation read timeout
	WriteTimeout time.Duration // per-operation write timeout
	PingTimeout  time.Duration // liveness check timeout
	PoolSize     int           // Redis connection pool size
}

// connectionLogger handles all Redis connection logging.
type connectionLogger struct {
	logger logger.Logger
}

func (cl *connectionLogger) logConnectionStart(addr string, timeout time.Duration) {
	cl.logger.Debug("connecting to redis",
		logger.String("addr", addr),
		logger.Duration("timeout", timeout))
}

func (cl *connectionLogger) logSuccess(addr string, connects int) {
	if connects > 1 {
		cl.logger.Warn("reconnected to redis",
			logger.String("addr", addr),
			logger.Int("connects", connects))
	} else {
		cl.logger.Info("connected to redis",
			logger.String("addr", addr))
	}
}

func (cl *connectionLogger) logConnectFailure(addr string, err error) {
	cl.logger.Warn("redis connection error, will retry on next attempt",
		logger.String("addr", addr),
		logger.Error(err))
}

func (cl *connectionLogger) logUnhealthy(addr string, err error) {
	cl.logger.Warn("existing redis connection unhealthy, reconnecting",
		logger.String("addr", addr),
		logger.Error(err))
}

// validateOptions ensures all required configuration values are valid.
func (cl *connectionLogger) validateOptions(opts ConnectOptions) error {
	if opts.DialTimeout <= 0 {
		cl.logger.Error("invalid DialTimeout", logger.Duration("value", opts.DialTimeout))
		return fmt.Errorf("DialTimeout must be > 0, got %v", opts.DialTimeout)
	}
	if opts.ReadTimeout <= 0 {
		cl.logger.Error("invalid ReadTimeout", logger.Duration("value", opts.ReadTimeout))
		return fmt.Errorf("ReadTimeout must be > 0, got %v", opts.ReadTimeout)
	}
	if opts.WriteTimeout <= 0 {
		cl.logger.Error("invalid WriteTimeout", logger.Duration("value", opts.WriteTimeout))
		return fmt.Errorf("WriteTimeout must be > 0, got %v", opts.WriteTimeout)
	}
	if opts.PingTimeout <= 0 {
		cl.logger.Error("invalid PingTimeout", logger.Duration("value", opts.PingTimeout))
		return fmt.Errorf("PingTimeout must be > 0, got %v", opts.PingTimeout)
	}
	return nil
}

// Connection owns at most one live Redis handle. It connects lazily, checks
// liveness before every reuse and replaces the handle when the check fails.
// Access is serialized so one Connection can be shared by several loops.
type Connection struct {
	opts ConnectOptions
	log  *connectionLogger

	mu       sync.Mutex
	client   *redis.Client // nil => disconnected
	connects int
}

// New creates a Connection without touching the network. An empty Addr yields an
// inert connection whose Put always returns ErrStoreUnconfigured.
func New(opts ConnectOptions, log logger.Logger) (*Connection, error) {
	connLogger := &connectionLogger{logger: log}
	if opts.Addr == "" {
		log.Warn("REDIS_HOST not set, publishing disabled")
		return &Connection{opts: opts, log: connLogger}, nil
	}
	if err := connLogger.validateOptions(opts); err != nil {
		return nil, err
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 2
	}
	return &Connection{opts: opts, log: connLogger}, nil
}

// Configured reports whether a store host was given.
func (c *Connection) Configured() bool { return c.opts.Addr != "" }

// Addr returns the configured address.
func (c *Connection) Addr() string { return c.opts.Addr }

// State reports the current connection state.
func (c *Connection) State() State {
	if !c.Configured() {
		return StateUnconfigured
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return StateDisconnected
	}
	return StateConnected
}

// Connects returns how many handles have been successfully established.
func (c *Connection) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Put writes value under key, overwriting any previous value. No TTL is set.
func (c *Connection) Put(ctx context.Context, key, value string) error {
	if !c.Configured() {
		return ErrStoreUnconfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.ensureLocked(ctx)
	if err != nil {
		return err
	}

	if err := client.Set(ctx, key, value, 0).Err(); err != nil {
		if isConnectionError(err) {
			c.discardLocked()
			return fmt.Errorf("%w: set %s: %v", ErrStoreConnection, key, err)
		}
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get reads the raw value stored under key.
func (c *Connection) Get(ctx context.Context, key string) (string, error) {
	if !c.Configured() {
		return "", ErrStoreUnconfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.ensureLocked(ctx)
	if err != nil {
		return "", err
	}

	v, err := client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	case err != nil && isConnectionError(err):
		c.discardLocked()
		return "", fmt.Errorf("%w: get %s: %v", ErrStoreConnection, key, err)
	case err != nil:
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Reconnect drops the current handle and establishes a fresh one.
func (c *Connection) Reconnect(ctx context.Context) error {
	if !c.Configured() {
		return ErrStoreUnconfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.discardLocked()
	_, err := c.connectLocked(ctx)
	return err
}

// Ping runs a liveness check, connecting first if needed.
func (c *Connection) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrStoreUnconfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.ensureLocked(ctx)
	return err
}

// Close releases the handle. The Connection may be reused afterwards.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// ensureLocked returns a live client, replacing an unhealthy one.
func (c *Connection) ensureLocked(ctx context.Context) (*redis.Client, error) {
	if c.client != nil {
		err := c.pingLocked(ctx, c.client)
		if err == nil {
			return c.client, nil
		}
		c.log.logUnhealthy(c.opts.Addr, err)
		c.discardLocked()
	}
	return c.connectLocked(ctx)
}

func (c *Connection) connectLocked(ctx context.Context) (*redis.Client, error) {
	c.log.logConnectionStart(c.opts.Addr, c.opts.DialTimeout)

	client := redis.NewClient(&redis.Options{
		Addr:         c.opts.Addr,
		Username:     c.opts.User,
		Password:     c.opts.Password,
		DB:           c.opts.RedisDB,
		DialTimeout:  c.opts.DialTimeout,
		ReadTimeout:  c.opts.ReadTimeout,
		WriteTimeout: c.opts.WriteTimeout,
		PoolSize:     c.opts.PoolSize,
		// retries belong to the publish pipeline
		MaxRetries: -1,
	})

	if err := c.pingLocked(ctx, client); err != nil {
		_ = client.Close()
		c.log.logConnectFailure(c.opts.Addr, err)
		return nil, fmt.Errorf("%w: connect %s: %v", ErrStoreConnection, c.opts.Addr, err)
	}

	c.client = client
	c.connects++
	c.log.logSuccess(c.opts.Addr, c.connects)
	return client, nil
}

func (c *Connection) pingLocked(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
	defer cancel()
	return client.Ping(pingCtx).Err()
}

func (c *Connection) discardLocked() {
	if c.client == nil {
		return
	}
	_ = c.client.Close()
	c.client = nil
}

// isConnectionError separates transport failures from server replies. A few
// replies mean "this node cannot serve you right now" and count as transport.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		for _, prefix := range []string{"LOADING", "READONLY", "MASTERDOWN", "CLUSTERDOWN", "TRYAGAIN"} {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
		return false
	}
	return true
}
