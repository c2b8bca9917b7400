package server

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bustedgame/busted-server/internal/database"
	"github.com/bustedgame/busted-server/internal/entitlements"
	"github.com/bustedgame/busted-server/internal/handlers"
	"github.com/bustedgame/busted-server/internal/session"
	"github.com/bustedgame/busted-server/pkg/auth"
)

type Server struct {
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	JWTManager *auth.JWTManager
	Registry   *session.Registry
}

func NewServer() *Server {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			logrus.Info(".env not found, using environment variables")
		}
	}

	dbConn := database.NewDatabase()
	if err := dbConn.Connect(); err != nil {
		logrus.Fatalf("Postgres connect failed: %v", err)
	}

	if raw := os.Getenv("CUSTOM_QUESTION_BIAS"); raw != "" {
		bias, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			logrus.Fatalf("invalid CUSTOM_QUESTION_BIAS: %v", err)
		}
		dbConn.SetCustomQuestionBias(bias)
	}

	redisOpts, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		logrus.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logrus.Fatalf("Redis connect failed: %v", err)
	}

	jwtMgr := auth.NewJWTManager(
		os.Getenv("JWT_SECRET"),
		24*time.Hour,
	)

	registry := session.NewRegistry(rdb)

	checker := entitlements.NewHTTPChecker(os.Getenv("ENTITLEMENT_URL"))
	generator := entitlements.NewHTTPGenerator(os.Getenv("GENERATOR_URL"))

	authH := handlers.NewAuthHandler(jwtMgr, rdb)
	roomH := handlers.NewRoomHandler(dbConn)
	questionH := handlers.NewQuestionHandler(dbConn, checker, generator)
	wsH := handlers.NewWebSocketHandler(dbConn, registry)

	router := gin.Default()
	APIEndpoints(router, jwtMgr, rdb, authH, roomH, questionH, wsH)

	return &Server{
		Router:     router,
		DB:         dbConn,
		Redis:      rdb,
		JWTManager: jwtMgr,
		Registry:   registry,
	}
}

func (s *Server) Run() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logrus.Infof("server starting on port %s", port)
	if err := s.Router.Run(":" + port); err != nil {
		logrus.Fatalf("server run error: %v", err)
	}
}
