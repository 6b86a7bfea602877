package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messenger_messages_ingested_total",
		Help: "Messages accepted and persisted by the ingestion pipeline.",
	})
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_messages_dropped_total",
		Help: "Send events dropped by the ingestion pipeline, by reason.",
	}, []string{"reason"})
	BroadcastsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messenger_broadcasts_total",
		Help: "Room broadcasts emitted.",
	})
)

// Handler mounts the Prometheus scrape endpoint on a Fiber app.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
