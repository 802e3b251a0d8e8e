package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/internal/identities"
	"github.com/Aidin1998/pincex_spot/internal/trading/lifecycle"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// Identities is what the API needs from the identities service.
type Identities interface {
	Register(ctx context.Context, req identities.RegisterRequest) (*models.User, error)
	Profile(ctx context.Context, userID uint64) (*models.User, error)
	Exists(ctx context.Context, userID uint64) (bool, error)
}

// Orders is what the API needs from the order lifecycle service.
type Orders interface {
	Create(ctx context.Context, p lifecycle.CreateOrderParams) (*models.Order, error)
	Cancel(ctx context.Context, userID, orderID uint64) (*models.Order, error)
}

// Options configures the HTTP server.
type Options struct {
	ServiceName    string
	AllowedOrigins []string
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	logger     *zap.Logger
	identities Identities
	orders     Orders
	orderStore repository.OrderRepository
	tradeStore repository.TradeRepository
}

// NewServer creates a new API server with injected services.
func NewServer(
	logger *zap.Logger,
	identitySvc Identities,
	orderSvc Orders,
	orderStore repository.OrderRepository,
	tradeStore repository.TradeRepository,
	opts Options,
) *Server {
	s := &Server{
		logger:     logger,
		identities: identitySvc,
		orders:     orderSvc,
		orderStore: orderStore,
		tradeStore: tradeStore,
	}
	registerValidators()

	if opts.ServiceName == "" {
		opts.ServiceName = "pincex-api"
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(requestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", UserIDHeader, RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	s.router = router
	s.registerRoutes()
	return s
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := s.router.Group("/api/v1")
	public.POST("/users", s.registerUser)

	protected := s.router.Group("/api/v1")
	protected.Use(s.identityMiddleware())
	{
		protected.GET("/profile", s.getProfile)

		protected.POST("/orders", s.placeOrder)
		protected.GET("/orders", s.listOrders)
		protected.POST("/orders/:id/cancel", s.cancelOrder)

		protected.GET("/trades", s.listTrades)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
