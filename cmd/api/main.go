package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/apperr"
	"qrattend/internal/attendance"
	"qrattend/internal/audit"
	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/metrics"
	"qrattend/internal/notify"
	"qrattend/internal/queue"
	"qrattend/internal/session"
	"qrattend/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	auditLog := audit.New(db.Client)
	sessionRepo := session.NewRepository(db.Client)
	issuer := session.NewIssuer(sessionRepo, auditLog)
	attRepo := attendance.NewRepository(db.Client)
	validator := attendance.NewService(attRepo, notify.NewDispatcher(q), auditLog)
	authSvc := auth.NewService(auth.NewRepository(db.Client),
		cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "email and password are required"})
			return
		}
		tokens, err := authSvc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	faculty := r.Group("/v1", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleFaculty))

	faculty.POST("/sessions", func(c *gin.Context) {
		var req struct {
			ClassID          string   `json:"class_id"`
			DurationMinutes  int      `json:"duration_minutes"`
			LocationRequired bool     `json:"location_required"`
			Latitude         *float64 `json:"latitude"`
			Longitude        *float64 `json:"longitude"`
			RadiusMeters     float64  `json:"radius_meters"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
			return
		}

		s, err := issuer.Create(c.Request.Context(), auth.CallerID(c), session.CreateInput{
			ClassID:          req.ClassID,
			DurationMinutes:  req.DurationMinutes,
			LocationRequired: req.LocationRequired,
			Latitude:         req.Latitude,
			Longitude:        req.Longitude,
			RadiusMeters:     req.RadiusMeters,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		metrics.SessionsCreated.Inc()

		payload, err := s.Payload().Encode()
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"session": gin.H{
				"id":         s.ID,
				"class_id":   s.ClassID,
				"expires_at": s.ExpiresAt,
				"token":      s.Token,
				"qr_payload": payload,
			},
		})
	})

	faculty.GET("/sessions/:id/qr.png", func(c *gin.Context) {
		s, err := issuer.Get(c.Request.Context(), auth.CallerID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		png, err := session.RenderPNG(s, 256)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	faculty.GET("/sessions/:id/records", func(c *gin.Context) {
		s, err := issuer.Get(c.Request.Context(), auth.CallerID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		records, err := attRepo.ListBySession(c.Request.Context(), s.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "listing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
	})

	student := r.Group("/v1", auth.RequireRole(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleStudent))

	student.POST("/attendance", func(c *gin.Context) {
		var req struct {
			SID       string   `json:"sid"`
			T         string   `json:"t"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.Scans.WithLabelValues(apperr.BadRequest.String()).Inc()
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid QR code format"})
			return
		}

		rec, err := validator.Mark(c.Request.Context(), auth.CallerID(c), attendance.MarkInput{
			SID:       req.SID,
			Token:     req.T,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		})
		if err != nil {
			metrics.Scans.WithLabelValues(apperr.KindOf(err).String()).Inc()
			respondError(c, err)
			return
		}
		metrics.Scans.WithLabelValues("marked").Inc()

		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"message":       "Attendance marked as " + rec.Status,
			"attendance_id": rec.ID,
		})
	})

	student.GET("/attendance/history", func(c *gin.Context) {
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		records, err := attRepo.ListByStudent(c.Request.Context(), auth.CallerID(c), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "listing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		log.Printf("internal error: %v", err)
	}
	c.JSON(kind.HTTPStatus(), gin.H{"success": false, "error": apperr.MessageOf(err)})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
