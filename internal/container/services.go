package container

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/contact-intake/internal/ratelimit"
	"go.uber.org/zap"
)

var ErrNoDatabase = errors.New("no database URL configured")

// RedisClient closes the client on injector shutdown.
type RedisClient struct {
	*redis.Client
}

func (r *RedisClient) Shutdown() error {
	return r.Close()
}

// PostgresPool closes the pool on injector shutdown.
type PostgresPool struct {
	*pgxpool.Pool
}

func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

// HealthCheck pings the database.
func (p *PostgresPool) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	return p.Ping(ctx)
}

// Janitor periodically drops idle keys from local admission windows.
type Janitor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

func newJanitor(logger *zap.Logger) *Janitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Janitor{ctx: ctx, cancel: cancel, logger: logger}
}

// Watch starts pruning sw every janitorInterval until shutdown.
func (j *Janitor) Watch(sw *ratelimit.SlidingWindow) {
	j.watch(sw, janitorInterval)
}

func (j *Janitor) watch(sw *ratelimit.SlidingWindow, interval time.Duration) {
	j.wg.Add(1)

	go func() {
		defer j.wg.Done()

		sw.RunJanitor(j.ctx, interval)
	}()
}

func (j *Janitor) Shutdown() error {
	j.cancel()
	j.wg.Wait()
	j.logger.Debug("admission janitor stopped")

	return nil
}
