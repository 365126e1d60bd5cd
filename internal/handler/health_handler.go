package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// Readiness is satisfied by the notification service, which checks its audit store.
type Readiness interface {
	Ready(ctx context.Context) error
}

// BrokerStatus is satisfied by the RabbitMQ connection manager.
type BrokerStatus interface {
	IsConnected() bool
}

func RegisterHealthRoutes(app fiber.Router, store Readiness, rdb *redis.Client, brokers ...BrokerStatus) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(store, rdb, brokers...))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ServiceHealthHandler reports process liveness under the notifications API.
func ServiceHealthHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"service":   "notification-service",
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReadyzHandler checks the audit store, redis and every broker connection.
// The rabbitmq check is ok only when all non-nil brokers are connected.
func ReadyzHandler(store Readiness, rdb *redis.Client, brokers ...BrokerStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		storeErr := store.Ready(ctx)
		redisErr := rdb.Ping(ctx).Err()

		checks := fiber.Map{
			"auditStore": checkStatus(storeErr == nil),
			"redis":      checkStatus(redisErr == nil),
		}

		brokerUp, brokerChecked := true, false
		for _, broker := range brokers {
			if broker == nil {
				continue
			}
			brokerChecked = true
			brokerUp = brokerUp && broker.IsConnected()
		}
		if brokerChecked {
			checks["rabbitmq"] = checkStatus(brokerUp)
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if storeErr != nil || redisErr != nil || !brokerUp {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func checkStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "down"
}
