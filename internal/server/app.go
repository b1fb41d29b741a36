// Package server wires the preshare server from its configuration: record
// and user repositories, payload storage, the token blacklist, the
// re-encryption gateway and the REST API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/preshare/internal/cryptox"
	"github.com/dmitrijs2005/preshare/internal/gateway"
	"github.com/dmitrijs2005/preshare/internal/logging"
	"github.com/dmitrijs2005/preshare/internal/server/auth"
	"github.com/dmitrijs2005/preshare/internal/server/config"
	"github.com/dmitrijs2005/preshare/internal/server/httpapi"
	"github.com/dmitrijs2005/preshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/preshare/internal/server/services"
	"github.com/dmitrijs2005/preshare/internal/server/storage"
)

const redisPingTimeout = 3 * time.Second

// test seams
var (
	passwordParams = cryptox.DefaultParams
	newRedisClient = func(addr string) *redis.Client {
		return redis.NewClient(&redis.Options{Addr: addr})
	}
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler http.Handler
	gateway *gateway.Server

	closers []func() error
}

// Build connects every backend named in c and assembles the REST handler.
// Backends left empty in c fall back to in-memory implementations.
func Build(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	a := &App{config: c, logger: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	repos, err := a.initRepositories(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.initStorage(ctx)
	if err != nil {
		return nil, err
	}
	blacklist, err := a.initBlacklist(ctx)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewManager(c.SecretKey, c.TokenTTL, blacklist)
	users := services.NewUserService(repos, tokens, passwordParams, log.With("service", "users"))

	gw, err := a.initGateway(users.Authenticate)
	if err != nil {
		return nil, err
	}
	data := services.NewDataAccessService(repos, store, gw, log.With("service", "data_accesses"))

	a.handler = httpapi.NewHandler(users, data, c.MaxUploadSize, log).Routes()
	ok = true
	return a, nil
}

func (a *App) initRepositories(ctx context.Context) (repomanager.RepositoryManager, error) {
	if a.config.DatabaseDSN == "" {
		a.logger.Warn(ctx, "no database configured, keeping users and records in memory")
		return repomanager.NewMemoryRepositoryManager(), nil
	}

	rm, err := repomanager.NewPostgresRepositoryManager(ctx, a.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	a.closers = append(a.closers, rm.Close)

	if err := rm.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return rm, nil
}

func (a *App) initStorage(ctx context.Context) (storage.Storage, error) {
	var store storage.Storage
	if a.config.S3Bucket == "" {
		a.logger.Warn(ctx, "no bucket configured, keeping payloads in memory")
		store = storage.NewMemoryStorage()
	} else {
		s3, err := storage.NewS3Storage(ctx, storage.S3Config{
			Region:    a.config.S3Region,
			Endpoint:  a.config.S3Endpoint,
			AccessKey: a.config.S3AccessKey,
			SecretKey: a.config.S3SecretKey,
			Bucket:    a.config.S3Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("storage init error: %w", err)
		}
		store = s3
	}

	key, err := a.config.StorageKeyBytes()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return store, nil
	}
	sealed, err := storage.NewSealed(store, key)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

func (a *App) initBlacklist(ctx context.Context) (auth.Blacklist, error) {
	if a.config.RedisAddr == "" {
		return auth.NewMemoryBlacklist(), nil
	}

	rdb := newRedisClient(a.config.RedisAddr)
	a.closers = append(a.closers, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return auth.NewRedisBlacklist(rdb, "preshare:jti:"), nil
}

// initGateway connects to an external gateway, or hosts a passthrough one
// that clients reach over gRPC and the server calls directly.
func (a *App) initGateway(authn gateway.Authenticator) (gateway.Gateway, error) {
	if a.config.GatewayAddr != "" {
		gw, err := gateway.NewGRPCClient(a.config.GatewayAddr, nil, a.logger.With("component", "gateway"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gw.Close)
		return gw, nil
	}

	pt := gateway.NewPassthrough()
	a.gateway = gateway.NewServer(a.config.GatewayListen, pt, authn, a.logger)
	return pt, nil
}

// Handler returns the REST API.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves the REST API, and the in-process gateway when there is one,
// until ctx is cancelled or either server fails. Backends are closed before
// it returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.logger.Info(ctx, "Starting app...")

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				a.logger.Error(ctx, "server failed", "server", name, "error", err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				errMu.Unlock()
				cancel()
			}
		}()
	}

	run("http", httpapi.NewServer(a.config.ListenAddr, a.handler, a.logger).Run)
	if a.gateway != nil {
		run("gateway", a.gateway.Run)
	}

	wg.Wait()
	a.logger.Info(context.Background(), "App stopped")

	return errors.Join(append(errs, a.Close())...)
}

// Close releases the backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
