// Package httpapi: HTTP-шлюз на gin поверх фасада сервиса доступности.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Прокси, чьему X-Forwarded-For верим. Пусто: IP берётся из соединения.
	TrustedProxies []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(h *Handler, hub *Hub, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, trusting none", zap.Strings("proxies", cfg.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger).Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/charters", h.CreateCharter)

		charters := api.Group("/charters/:id")
		charters.GET("/availability", h.DayAvailability)
		charters.POST("/bookings", h.AdmitBooking)
		charters.GET("/bookings", h.ListBookings)
		charters.PUT("/slots/:date/:slot", h.ConfigureSlot)
		charters.POST("/blocks", h.CreateBlock)
		charters.GET("/blocks", h.ListBlocks)
		charters.POST("/price-rules", h.CreatePriceRule)
		charters.GET("/price-rules", h.ListPriceRules)
		charters.GET("/events", h.ListEvents)
		if hub != nil {
			charters.GET("/ws", hub.Serve)
		}

		bookings := api.Group("/bookings/:id")
		bookings.POST("/cancel", h.CancelBooking)
		bookings.GET("/refund-quote", h.QuoteRefund)
		bookings.POST("/reschedule", h.RescheduleBooking)

		api.DELETE("/blocks/:id", h.DeleteBlock)
		api.DELETE("/price-rules/:id", h.DeletePriceRule)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Idempotency-Key", CaptainHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// OriginChecker: проверка Origin для WebSocket по тому же списку, что у CORS.
func OriginChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
