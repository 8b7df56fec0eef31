package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
)

const pingTimeout = 3 * time.Second

// HealthServer reports database reachability over HTTP and gRPC health.
type HealthServer struct {
	drv    *entsql.Driver
	grpc   *health.Server
	logger *slog.Logger
}

func NewHealthServer(drv *entsql.Driver, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{drv: drv, grpc: hs, logger: logger}
}

func (h *HealthServer) Healthz(c *gin.Context) {
	if err := repository.HealthCheck(c.Request.Context(), h.drv, pingTimeout, h.logger); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GRPCServer returns a gRPC server carrying only the health and reflection
// services, for liveness checks and grpcurl.
func (h *HealthServer) GRPCServer() *grpc.Server {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h.grpc)
	reflection.Register(gs)
	return gs
}

// Monitor pings the database every interval and flips the gRPC serving
// status accordingly. It returns when ctx is done.
func (h *HealthServer) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	last := healthpb.HealthCheckResponse_SERVING
	for {
		select {
		case <-ctx.Done():
			h.grpc.Shutdown()
			return
		case <-t.C:
			status := healthpb.HealthCheckResponse_SERVING
			if err := repository.HealthCheck(ctx, h.drv, pingTimeout, h.logger); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			if status != last {
				h.logger.Warn("health.status.changed", "status", status.String())
				last = status
			}
			h.grpc.SetServingStatus("", status)
		}
	}
}
