package health_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/contact-intake/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	err error
}

func (m *mockChecker) Ping(_ context.Context) error {
	return m.err
}

func TestHandler_Check(t *testing.T) {
	t.Run("returns ok when all dependencies are healthy", func(t *testing.T) {
		handler := health.NewHandler(
			health.Dependency{Name: "redis", Checker: &mockChecker{}},
			health.Dependency{Name: "postgres", Checker: &mockChecker{}},
		)

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusOK, resp.Body.Status)
		assert.Equal(t, map[string]string{"redis": "healthy", "postgres": "healthy"}, resp.Body.Dependencies)
	})

	t.Run("returns degraded when one dependency is unhealthy", func(t *testing.T) {
		handler := health.NewHandler(
			health.Dependency{Name: "redis", Checker: &mockChecker{err: errors.New("connection refused")}},
			health.Dependency{Name: "postgres", Checker: &mockChecker{}},
		)

		resp, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, health.StatusDegraded, resp.Body.Status)
		assert.Equal(t, "unhealthy", resp.Body.Dependencies["redis"])
		assert.Equal(t, "healthy", resp.Body.Dependencies["postgres"])
	})

	t.Run("checks receive a deadline", func(t *testing.T) {
		var hasDeadline bool

		handler := health.NewHandler(health.Dependency{
			Name: "probe",
			Checker: health.CheckerFunc(func(ctx context.Context) error {
				_, hasDeadline = ctx.Deadline()

				return nil
			}),
		})

		_, err := handler.Check(context.Background(), nil)

		require.NoError(t, err)
		assert.True(t, hasDeadline)
	})
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := health.NewRedisChecker(client)

	require.NoError(t, checker.Ping(context.Background()))

	mr.Close()

	assert.Error(t, checker.Ping(context.Background()))
}

func TestRegisterRoutes(t *testing.T) {
	_, api := humatest.New(t)
	health.RegisterRoutes(api, health.NewHandler(health.Dependency{Name: "redis", Checker: &mockChecker{}}))

	resp := api.Get("/health")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ok"`)
	assert.Contains(t, resp.Body.String(), `"redis":"healthy"`)
}
