package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/application/services"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/bootstrap"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/domain/events"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/infrastructure/database"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/interfaces/middleware"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/internal/interfaces/rest"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
)

func main() {
	// .env is a development convenience; absence is fine
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3002"
	}

	conn, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	if err := bootstrap.InitializeSchema(conn.DB()); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	svcMgr, err := services.NewServiceManager(conn.DB(), loadConfig())
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	log.Println("🔧 Service manager initialized")

	subscribeAuditLog(svcMgr.Events)

	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "workflow-engine"})
	})

	api := router.Group("/api/workflow", middleware.RequireServiceToken())

	templateHandler := rest.NewTemplateHandler(svcMgr)
	templates := api.Group("/templates")
	templates.POST("", templateHandler.CreateTemplate)
	templates.GET("", templateHandler.ListTemplates)
	templates.GET("/default/:entityType", templateHandler.GetDefaultTemplate)
	templates.GET("/:templateId", templateHandler.GetTemplate)
	templates.PATCH("/:templateId", templateHandler.UpdateTemplate)
	templates.DELETE("/:templateId", templateHandler.DeleteTemplate)
	templates.GET("/:templateId/versions", templateHandler.ListTemplateVersions)

	instanceHandler := rest.NewInstanceHandler(svcMgr)
	instances := api.Group("/instances")
	instances.POST("", instanceHandler.StartInstance)
	instances.GET("", instanceHandler.ListInstances)
	instances.GET("/by-entity/:entityType/:entityId", instanceHandler.GetInstanceByEntity)
	instances.GET("/:instanceId", instanceHandler.GetInstance)
	instances.POST("/:instanceId/transition", instanceHandler.TransitionInstance)
	instances.POST("/:instanceId/complete", instanceHandler.CompleteInstance)
	instances.POST("/:instanceId/cancel", instanceHandler.CancelInstance)
	instances.POST("/:instanceId/pause", instanceHandler.PauseInstance)
	instances.POST("/:instanceId/resume", instanceHandler.ResumeInstance)
	instances.GET("/:instanceId/allowed-transitions", instanceHandler.GetAllowedTransitions)

	svcMgr.StartScheduler()

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Workflow engine listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down...")

	svcMgr.StopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}

	if err := conn.Close(); err != nil {
		log.Printf("⚠️ Failed to close database: %v", err)
	}
	log.Println("👋 Workflow engine stopped")
}

func loadConfig() services.Config {
	return services.Config{
		Sla: services.SlaConfig{
			DefaultDays:             constants.SlaDefaultDays,
			WarningThresholdPercent: envFloat("SLA_WARNING_THRESHOLD_PCT", constants.SlaWarningThresholdPercent),
			CriticalThresholdHours:  envFloat("SLA_CRITICAL_HOURS", constants.SlaCriticalThresholdHours),
		},
		SweepSchedule: envString("SLA_SWEEP_SCHEDULE", constants.SlaSweepScheduleDefault),
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using default %.1f", key, raw, fallback)
		return fallback
	}
	return value
}

// subscribeAuditLog attaches a minimal audit sink: every lifecycle and SLA
// event is logged as JSON. Real audit/notification subsystems subscribe the
// same way.
func subscribeAuditLog(bus *services.EventBus) {
	eventTypes := []events.EventType{
		events.InstanceCreated,
		events.InstanceTransitioned,
		events.InstanceCompleted,
		events.InstanceCancelled,
		events.InstancePaused,
		events.InstanceResumed,
		events.SlaWarning,
		events.SlaBreached,
		events.SlaCritical,
	}
	for _, eventType := range eventTypes {
		et := eventType
		bus.Subscribe(et, func(_ context.Context, payload interface{}) error {
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			log.Printf("📝 AUDIT %s %s", et, data)
			return nil
		})
	}
}
