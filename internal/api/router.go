package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	notificationHandler *NotificationHandler
	wsHandler           *WSHandler
	healthHandler       *HealthHandler
	allowedOrigins      []string
	logger              *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	notificationHandler *NotificationHandler,
	wsHandler *WSHandler,
	healthHandler *HealthHandler,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		notificationHandler: notificationHandler,
		wsHandler:           wsHandler,
		healthHandler:       healthHandler,
		allowedOrigins:      allowedOrigins,
		logger:              logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))
	r.Use(chimiddleware.Compress(5))

	// Health endpoints
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	// Realtime channel
	r.Get("/ws", rt.wsHandler.HandleWebSocket)

	// Synchronous query/mutation surface
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/unread", rt.notificationHandler.GetUnreadCounts)
		r.Get("/unread-details", rt.notificationHandler.GetUnreadDetails)
		r.Post("/mark-read", rt.notificationHandler.MarkRead)
		r.Post("/mark-chat-read", rt.notificationHandler.MarkChatRead)

		r.Get("/unread-payments", rt.notificationHandler.GetUnreadPayments)
		r.Get("/all-payments", rt.notificationHandler.GetAllPayments)
		r.Post("/mark-payment-read", rt.notificationHandler.MarkPaymentsRead)

		r.Get("/unread-offers", rt.notificationHandler.GetUnreadOffers)
		r.Post("/mark-offer-read", rt.notificationHandler.MarkOffersRead)

		r.Get("/unread-admin-requests", rt.notificationHandler.GetUnreadAdminRequests)
		r.Get("/all-admin-requests", rt.notificationHandler.GetAllAdminRequests)
		r.Post("/mark-admin-request-read", rt.notificationHandler.MarkAdminRequestsRead)

		r.Post("/device-token", rt.notificationHandler.RegisterDeviceToken)
	})

	return r
}
