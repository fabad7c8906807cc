package server

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"modgate/internal/conf"
	"modgate/internal/pkg/ratelimit"
	"modgate/internal/service"
)

// NewHTTPServer creates the HTTP transport. The limiter is optional and
// applied as a filter so throttled requests never reach a handler.
func NewHTTPServer(c *conf.Bootstrap, svc *service.ModerationService, limiter *ratelimit.Limiter, logger log.Logger) *khttp.Server {
	opts := []khttp.ServerOption{
		khttp.Address(c.Server.Addr),
		khttp.Timeout(time.Duration(c.Server.TimeoutSeconds) * time.Second),
		khttp.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
	}
	if limiter != nil {
		opts = append(opts, khttp.Filter(limiter.Middleware))
	}

	srv := khttp.NewServer(opts...)
	registerRoutes(srv, svc)
	return srv
}

func registerRoutes(srv *khttp.Server, svc *service.ModerationService) {
	root := srv.Route("/")
	root.GET("/healthz", svc.Health)

	v1 := srv.Route("/v1")
	v1.POST("/moderate", svc.Moderate)
	v1.POST("/x-post", svc.XPost)
}
