// cmd/api/main.go
// Main entry point for the notification service
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/rentora/rentora-notifications/internal/auth"
	"github.com/rentora/rentora-notifications/internal/common/database"
	"github.com/rentora/rentora-notifications/internal/config"
	"github.com/rentora/rentora-notifications/internal/notifications"
	"github.com/rentora/rentora-notifications/internal/realtime"
	"github.com/rentora/rentora-notifications/internal/storage"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("🚀 Starting Rentora Notification Service")
	log.Println("========================================")

	// 1. Load environment variables
	log.Println("📁 Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// 2. Load and validate configuration
	log.Println("\n📋 Step 2: Loading configuration...")
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration validation failed:", err)
	}
	log.Println("✅ Configuration is valid")

	// 3. Connect to PostgreSQL
	log.Println("\n🗄️  Step 3: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to PostgreSQL:", err)
	}
	defer db.Close()
	log.Println("✅ Connected to PostgreSQL successfully")

	// 4. Connect to Redis (optional; queue and cache degrade without it)
	log.Println("\n📮 Step 4: Connecting to Redis...")
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable (%v), falling back to in-memory queue", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Println("✅ Connected to Redis successfully")
		}
	} else {
		log.Println("⚠️  Redis URL not configured, using in-memory queue")
	}

	// 5. Run database migrations
	log.Println("\n🔨 Step 5: Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Fatal("❌ Failed to run migrations:", err)
	}
	log.Println("✅ Database migrations completed")

	// 6. Initialize delivery providers
	log.Println("\n📨 Step 6: Initializing delivery providers...")
	ctx := context.Background()

	var pushService notifications.PushService
	if cfg.PushProvider == "fcm" {
		pushService, err = notifications.NewFCMPushService(ctx)
		if err != nil {
			log.Printf("   ⚠️  Warning: Push delivery disabled: %v", err)
			pushService = notifications.NewMockPushService()
		} else {
			log.Println("   ✅ Using FCM for push")
		}
	} else {
		pushService = notifications.NewMockPushService()
		log.Println("   ⚠️  Using mock push provider")
	}

	var emailService notifications.EmailService
	switch cfg.EmailProvider {
	case "sendgrid":
		emailService, err = notifications.NewSendGridEmailService()
		if err != nil {
			log.Fatal("❌ Failed to initialize SendGrid:", err)
		}
		log.Println("   ✅ Using SendGrid for email")
	case "smtp":
		emailService, err = notifications.NewSMTPEmailService()
		if err != nil {
			log.Fatal("❌ Failed to initialize SMTP:", err)
		}
		log.Println("   ✅ Using SMTP for email")
	default:
		emailService = notifications.NewMockEmailService()
		log.Println("   ⚠️  Using mock email provider")
	}

	var smsService notifications.SMSService
	if cfg.SMSProvider == "twilio" {
		smsService, err = notifications.NewTwilioSMSService()
		if err != nil {
			log.Fatal("❌ Failed to initialize Twilio:", err)
		}
		log.Println("   ✅ Using Twilio for SMS")
	} else {
		smsService = notifications.NewMockSMSService()
		log.Println("   ⚠️  Using mock SMS provider")
	}

	var mediaStore notifications.MediaResolver
	if cfg.UseS3 {
		s3Store, err := storage.NewS3MediaStore(cfg.S3Bucket, cfg.AWSRegion)
		if err != nil {
			log.Fatal("❌ Failed to initialize S3 media store:", err)
		}
		mediaStore = s3Store
		log.Println("   ✅ S3 media store configured")
	}

	// 7. Build the notification pipeline
	log.Println("\n🧠 Step 7: Building notification pipeline...")
	repo := notifications.NewPostgresRepository(db)

	var queue notifications.Queue
	if redisClient != nil {
		queue = notifications.NewRedisQueue(redisClient)
	} else {
		queue = notifications.NewMemoryQueue()
	}

	behaviorStore := notifications.NewCachedBehaviorStore(repo, redisClient, cfg.BehaviorCacheTTL)
	scorer := notifications.NewWeightedScorer()
	metrics := notifications.NewMetrics()

	hub := realtime.NewHub()
	go hub.Run()
	log.Println("   ✅ WebSocket hub started")

	inAppService := notifications.NewHubInAppService(hub)
	dispatcher := notifications.NewDispatcher(repo, queue, pushService, emailService, smsService, inAppService, metrics)
	notificationService := notifications.NewService(repo, queue, behaviorStore, scorer, dispatcher, metrics, mediaStore)
	log.Println("✅ Notification pipeline ready")

	// 8. Setup routes
	log.Println("\n🛣️  Step 8: Setting up routes...")
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheck(db)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	notificationsHandler := notifications.NewHandler(notificationService)
	notifications.RegisterRoutes(router, notificationsHandler, authMiddleware)
	log.Println("   ✅ Notification routes registered")

	wsHandler := realtime.NewHandler(hub, notificationService)
	router.Handle("/ws", authMiddleware.Authenticate(http.HandlerFunc(wsHandler.ServeWS)))
	log.Println("   ✅ WebSocket endpoint registered")

	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	// 9. Start background jobs
	log.Println("\n⏱️  Step 9: Starting background jobs...")
	sweeper := notifications.NewQueueSweeper(notificationService, cfg.QueueSweepInterval)
	go sweeper.Start(context.Background())

	cleanupJob := notifications.NewCleanupJob(notificationService, cfg.CleanupInterval, cfg.NotificationMaxAge)
	go cleanupJob.Start(context.Background())
	log.Println("✅ Queue sweeper and cleanup job started")

	// 10. Create and start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Println("\n========================================")
		log.Printf("🚀 Server starting on http://localhost%s", srv.Addr)
		log.Printf("🌍 Environment: %s", cfg.Environment)
		log.Println("========================================")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n⚠️  Shutdown signal received...")

	sweeper.Stop()
	cleanupJob.Stop()
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("❌ Server forced to shutdown:", err)
	}

	log.Println("✅ Server exited gracefully")
}

func healthCheck(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if err := db.Ping(); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// runMigrations creates the service schema
func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			full_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			phone VARCHAR(32) DEFAULT '',
			city VARCHAR(128) DEFAULT '',
			role VARCHAR(32) NOT NULL DEFAULT 'tenant',
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS notification_templates (
			id BIGSERIAL PRIMARY KEY,
			key VARCHAR(128) UNIQUE NOT NULL,
			kind VARCHAR(32) NOT NULL,
			category VARCHAR(32) NOT NULL,
			priority VARCHAR(16) NOT NULL,
			title_template TEXT NOT NULL,
			body_template TEXT NOT NULL,
			actions JSONB DEFAULT '[]',
			expires_after BIGINT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			template_key VARCHAR(128) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			category VARCHAR(32) NOT NULL,
			priority VARCHAR(16) NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			actions JSONB DEFAULT '[]',
			data JSONB DEFAULT '{}',
			expires_at TIMESTAMPTZ,
			channels JSONB NOT NULL DEFAULT '[]',
			scheduled_at TIMESTAMPTZ NOT NULL,
			sent_at TIMESTAMPTZ,
			delivered_at TIMESTAMPTZ,
			read_at TIMESTAMPTZ,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			outcomes JSONB NOT NULL DEFAULT '{}',
			intelligence JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_created
			ON notifications(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status_scheduled
			ON notifications(status, scheduled_at) WHERE status = 'pending'`,

		`CREATE TABLE IF NOT EXISTS notification_preferences (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT UNIQUE NOT NULL REFERENCES users(id),
			in_app_enabled BOOLEAN NOT NULL DEFAULT true,
			push_enabled BOOLEAN NOT NULL DEFAULT true,
			email_enabled BOOLEAN NOT NULL DEFAULT true,
			sms_enabled BOOLEAN NOT NULL DEFAULT false,
			categories JSONB NOT NULL DEFAULT '{}',
			quiet_hours JSONB NOT NULL DEFAULT '{}',
			smart_filter BOOLEAN NOT NULL DEFAULT false,
			importance_threshold DOUBLE PRECISION NOT NULL DEFAULT 5.0,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS user_behavior_patterns (
			user_id BIGINT PRIMARY KEY REFERENCES users(id),
			pattern JSONB NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS push_devices (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			platform VARCHAR(16) NOT NULL,
			token TEXT NOT NULL,
			device_id VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(user_id, device_id)
		)`,

		`CREATE TABLE IF NOT EXISTS interaction_events (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			category VARCHAR(32) NOT NULL,
			channel VARCHAR(16),
			action VARCHAR(32) NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interaction_events_user
			ON interaction_events(user_id, occurred_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
