// Package container wires the application services with samber/do.
package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/contact-intake/internal/auth"
	"github.com/serroba/contact-intake/internal/captcha"
	"github.com/serroba/contact-intake/internal/contact"
	"github.com/serroba/contact-intake/internal/export"
	"github.com/serroba/contact-intake/internal/handlers"
	"github.com/serroba/contact-intake/internal/health"
	"github.com/serroba/contact-intake/internal/messaging"
	"github.com/serroba/contact-intake/internal/middleware"
	"github.com/serroba/contact-intake/internal/notify"
	"github.com/serroba/contact-intake/internal/ratelimit"
	"github.com/serroba/contact-intake/internal/store"
	"go.uber.org/zap"
)

const (
	referenceLength = 10
	janitorInterval = time.Minute
	upstreamTimeout = 15 * time.Second
	connectTimeout  = 5 * time.Second
	serviceName     = "Contact Intake"
	serviceVersion  = "1.0.0"
)

// Repository is the submission store. Every backend also serves admin roles.
type Repository interface {
	contact.Repository
	auth.RoleLookup
}

// LoggerPackage provides *zap.Logger.
func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// RedisPackage provides *RedisClient.
func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisClient{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides *PostgresPool when a database URL is configured.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.DatabaseURL == "" {
			return nil, ErrNoDatabase
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})
}

// RepositoryPackage provides Repository. PostgREST wins over Postgres,
// which wins over the in-memory store.
func RepositoryPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (Repository, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch {
		case opts.SupabaseURL != "":
			logger.Info("using postgrest repository", zap.String("url", opts.SupabaseURL))

			return store.NewPostgRESTStore(opts.SupabaseURL, opts.SupabaseKey,
				&http.Client{Timeout: upstreamTimeout}), nil
		case opts.DatabaseURL != "":
			pool, err := do.Invoke[*PostgresPool](i)
			if err != nil {
				return nil, err
			}

			logger.Info("using postgres repository")

			return store.NewPostgresStore(pool.Pool), nil
		default:
			logger.Warn("no database configured, submissions are kept in memory")

			return store.NewMemoryStore(), nil
		}
	})
}

// AdmissionPackage provides the named contact and admin controllers, the
// counter store of the shared strategy and the janitor that prunes local
// windows.
func AdmissionPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (ratelimit.CounterStore, error) {
		if do.MustInvoke[*Options](i).AdmissionStore == "memory" {
			return store.NewCounterMemoryStore(nil), nil
		}

		return store.NewRedisCounterStore(do.MustInvoke[*RedisClient](i).Client), nil
	})

	provide := func(name string, cfg func(*Options) ratelimit.Config) {
		do.ProvideNamed(i, name, func(i *do.Injector) (ratelimit.Controller, error) {
			opts := do.MustInvoke[*Options](i)
			logger := do.MustInvoke[*zap.Logger](i)

			var counters ratelimit.CounterStore

			strategy := ratelimit.Strategy(opts.AdmissionStrategy)
			if strategy == ratelimit.StrategyShared {
				counters = do.MustInvoke[ratelimit.CounterStore](i)
			}

			controller, err := ratelimit.New(strategy, cfg(opts), counters, logger)
			if err != nil {
				return nil, fmt.Errorf("admission %s: %w", name, err)
			}

			return controller, nil
		})
	}

	provide(handlers.ScopeContact, (*Options).AdmissionConfig)
	provide(handlers.ScopeAdmin, (*Options).AdminAdmissionConfig)

	do.Provide(i, func(i *do.Injector) (*Janitor, error) {
		j := newJanitor(do.MustInvoke[*zap.Logger](i))

		for _, scope := range []string{handlers.ScopeContact, handlers.ScopeAdmin} {
			if sw, ok := do.MustInvokeNamed[ratelimit.Controller](i, scope).(*ratelimit.SlidingWindow); ok {
				j.Watch(sw)
			}
		}

		return j, nil
	})
}

// CaptchaPackage provides *captcha.Recaptcha.
func CaptchaPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*captcha.Recaptcha, error) {
		opts := do.MustInvoke[*Options](i)

		return captcha.NewRecaptcha(opts.RecaptchaSecret,
			&http.Client{Timeout: captcha.DefaultTimeout},
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
}

// AuthPackage provides auth.Verifier.
func AuthPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (auth.Verifier, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.JWTSecret == "" {
			do.MustInvoke[*zap.Logger](i).Warn("no JWT secret configured, admin routes reject every token")
		}

		return auth.NewJWTVerifier([]byte(opts.JWTSecret), do.MustInvoke[Repository](i)), nil
	})
}

// PublisherGroupPackage provides *messaging.PublisherGroup backed by Redis streams.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*RedisClient](i)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client.Client},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return nil, fmt.Errorf("create redis publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})
}

// ServicePackage provides *contact.Service.
func ServicePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*contact.Service, error) {
		logger := do.MustInvoke[*zap.Logger](i)

		reference, err := nanoid.Standard(referenceLength)
		if err != nil {
			return nil, fmt.Errorf("reference generator: %w", err)
		}

		publishers := do.MustInvoke[*messaging.PublisherGroup](i)
		opts := []contact.ServiceOption{
			contact.WithPublisher(messaging.NewPublishFunc(
				publishers.Publisher(), notify.TopicContactSubmitted,
				messaging.WithKey(func(e *notify.SubmissionEvent) string { return e.Reference }),
			)),
		}

		if do.MustInvoke[*Options](i).IgnoreForwardedFor {
			opts = append(opts, contact.WithoutForwardedFor())
		}

		if rc := do.MustInvoke[*captcha.Recaptcha](i); rc.Enabled() {
			opts = append(opts, contact.WithCaptcha(rc))
		} else {
			logger.Warn("no reCAPTCHA secret configured, captcha verification is skipped")
		}

		return contact.NewService(
			do.MustInvoke[Repository](i),
			do.MustInvokeNamed[ratelimit.Controller](i, handlers.ScopeContact),
			reference,
			logger,
			opts...,
		), nil
	})
}

// ExportPackage provides *export.Streamer over the repository.
func ExportPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*export.Streamer, error) {
		opts := do.MustInvoke[*Options](i)

		return export.NewStreamer(
			do.MustInvoke[Repository](i),
			contact.Source(),
			do.MustInvoke[*zap.Logger](i),
			export.WithQuoting(opts.Quoting()),
		), nil
	})
}

// HTTPPackage provides the router and the API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)

		config := huma.DefaultConfig(serviceName, serviceVersion)
		config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
			"bearer": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}

		api := humachi.New(router, config)

		api.UseMiddleware(
			middleware.RequestMeta(api),
			middleware.Admission(api, map[string]ratelimit.Controller{
				handlers.ScopeAdmin: do.MustInvokeNamed[ratelimit.Controller](i, handlers.ScopeAdmin),
			}, logger),
		)

		service := do.MustInvoke[*contact.Service](i)

		handlers.RegisterRoutes(api,
			handlers.NewContactHandler(service, logger),
			handlers.NewSubmissionsHandler(service, do.MustInvoke[*export.Streamer](i), opts.ExportPageSize, logger),
			middleware.RequireAdmin(api, do.MustInvoke[auth.Verifier](i), logger),
		)

		deps := []health.Dependency{
			{Name: "redis", Checker: health.NewRedisChecker(do.MustInvoke[*RedisClient](i).Client)},
		}

		if opts.SupabaseURL == "" && opts.DatabaseURL != "" {
			deps = append(deps, health.Dependency{Name: "postgres", Checker: do.MustInvoke[*PostgresPool](i)})
		}

		health.RegisterRoutes(api, health.NewHandler(deps...))

		return api, nil
	})
}

// ConsumerGroupPackage provides *messaging.ConsumerGroup. New submissions
// are posted to the notify webhook when one is configured and logged
// otherwise.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		client := do.MustInvoke[*RedisClient](i)

		subscriber, err := redisstream.NewSubscriber(
			redisstream.SubscriberConfig{
				Client:        client.Client,
				ConsumerGroup: opts.ConsumerGroup,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return nil, fmt.Errorf("create redis subscriber: %w", err)
		}

		handler := notify.LogHandler(logger)
		if opts.NotifyURL != "" {
			handler = notify.NewWebhook(opts.NotifyURL,
				&http.Client{Timeout: notify.DefaultWebhookTimeout}, logger).Handle
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer(subscriber, notify.TopicContactSubmitted,
			messaging.Handler[notify.SubmissionEvent](handler), logger))

		return group, nil
	})
}
