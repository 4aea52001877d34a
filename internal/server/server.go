package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "caresync-backend/docs"
	"caresync-backend/internal/attendance"
	"caresync-backend/internal/platform/auth"
	"caresync-backend/internal/platform/db"
	"caresync-backend/internal/platform/events"
	"caresync-backend/internal/platform/logging"
	"caresync-backend/internal/platform/metrics"
	"caresync-backend/internal/settings"
	"caresync-backend/internal/staff"
)

const (
	APIPrefix = "/api/v1"

	// dev で jwt_secret 未設定のときだけ使う
	devJWTSecret = "caresync-dev-secret"
)

type Deps struct {
	Config    *db.Config
	DB        *sql.DB
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Publisher events.Publisher
}

// NewRouter: 全ルートを登録した gin.Engine を返す
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(logging.Middleware(d.Logger), gin.Recovery(), d.Metrics.Middleware())
	_ = r.SetTrustedProxies(nil)

	origins := cfg.CORS.AllowOrigins
	if cfg.Mode == "dev" {
		origins = append([]string{"http://localhost:3000"}, origins...)
	}
	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	if cfg.Mode == "dev" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		d.Logger.Warn("auth.jwt_secret is empty, using the development secret")
		secret = []byte(devJWTSecret)
	}

	settingsSvc := settings.NewService(d.DB, d.Logger)
	attendanceSvc := attendance.NewService(d.DB, attendance.Options{
		Location:         cfg.Location(),
		EnforcePerimeter: cfg.Attendance.EnforcePerimeter,
		StatsWorkers:     cfg.Attendance.StatsWorkers,
		Perimeter:        settingsSvc,
		Publisher:        d.Publisher,
		Metrics:          d.Metrics,
		Logger:           d.Logger,
	})

	// /api/v1
	public := r.Group(APIPrefix)
	api := r.Group(APIPrefix, auth.RequireAuth(secret, auth.NewStore(d.DB)))
	auth.RegisterRoutes(public, api, auth.NewService(d.DB, secret))
	staff.RegisterRoutes(api, staff.NewService(d.DB, d.Logger))
	settings.RegisterRoutes(api, settingsSvc)
	attendance.RegisterRoutes(api, attendanceSvc)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})
	return r
}

// NewPublisher: kafka.enabled なら Kafka、そうでなければ何もしない Publisher
func NewPublisher(cfg db.KafkaConfig, log *zap.Logger) events.Publisher {
	if !cfg.Enabled {
		return events.NopPublisher{}
	}
	log.Info("publishing clock events to kafka",
		zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, log)
}
