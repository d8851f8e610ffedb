package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"invoice-service/internal/auth"
	"invoice-service/internal/models"
	"invoice-service/internal/service"
	"invoice-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// InvoiceAPI is the order intake and invoice read surface
type InvoiceAPI interface {
	SubmitOrder(ctx context.Context, principal *auth.Principal, req *service.CreateInvoiceRequest) (*service.InvoiceResult, error)
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	ListInvoices(ctx context.Context) ([]models.Invoice, error)
	ListInvoiceDetails(ctx context.Context) ([]models.InvoiceDetail, error)
	ListInvoiceDetailsByProduct(ctx context.Context, productID int64) ([]models.InvoiceDetail, error)
}

type CatalogAPI interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, req *service.ProductRequest) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, req *service.ProductRequest) (*models.Product, error)
	DeactivateProduct(ctx context.Context, id int64) error
}

type AccountAPI interface {
	Login(ctx context.Context, req *service.LoginRequest) (*service.LoginResult, error)
	CreateUser(ctx context.Context, req *service.CreateUserRequest) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateRole(ctx context.Context, req *service.CreateRoleRequest) (*models.Role, error)
}

// Authenticator turns an Authorization header value into a principal
type Authenticator interface {
	Authenticate(token string) (*auth.Principal, error)
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Config wires the handler to its services
type Config struct {
	Invoices      InvoiceAPI
	Catalog       CatalogAPI
	Accounts      AccountAPI
	Tokens        Authenticator
	AdminRoleID   int64
	ManagerRoleID int64
	ReadyChecks   map[string]ReadinessCheck
}

// Handler contains HTTP handlers
type Handler struct {
	invoices      InvoiceAPI
	catalog       CatalogAPI
	accounts      AccountAPI
	tokens        Authenticator
	adminRoleID   int64
	managerRoleID int64
	readyChecks   map[string]ReadinessCheck
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(cfg Config) *Handler {
	if cfg.AdminRoleID == 0 {
		cfg.AdminRoleID = 1
	}
	if cfg.ManagerRoleID == 0 {
		cfg.ManagerRoleID = 2
	}
	return &Handler{
		invoices:      cfg.Invoices,
		catalog:       cfg.Catalog,
		accounts:      cfg.Accounts,
		tokens:        cfg.Tokens,
		adminRoleID:   cfg.AdminRoleID,
		managerRoleID: cfg.ManagerRoleID,
		readyChecks:   cfg.ReadyChecks,
		logger:        util.Component("http"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authenticated := AuthRequired(h.tokens)
	admin := RequireRole(h.adminRoleID)
	manager := RequireRole(h.managerRoleID)

	api := router.Group("/api")
	{
		api.POST("/auth", h.login)

		api.GET("/roles", authenticated, h.listRoles)
		api.POST("/roles", h.createRole)

		api.POST("/users", h.createUser)
		api.GET("/users", authenticated, admin, h.listUsers)
		api.GET("/users/:id", authenticated, admin, h.getUser)

		products := api.Group("/products", authenticated, admin)
		{
			products.GET("", h.listProducts)
			products.GET("/:id", h.getProduct)
			products.POST("", h.createProduct)
			products.PUT("/:id", h.updateProduct)
			products.DELETE("/:id", h.deleteProduct)
		}

		invoices := api.Group("/invoices", authenticated)
		{
			invoices.GET("", h.listInvoices)
			invoices.GET("/:id", h.getInvoice)
			invoices.POST("", manager, h.createInvoice)
		}

		details := api.Group("/invoiceDetail", authenticated, manager)
		{
			details.GET("", h.listInvoiceDetails)
			details.GET("/:id", h.listInvoiceDetailsByProduct)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency check passes
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.readyChecks))
	for name, check := range h.readyChecks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// parseID reads a positive integer path parameter, answering 400 otherwise
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// bindJSON decodes the body into req, answering 400 on malformed input
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		h.logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
