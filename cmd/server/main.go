package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redisClient "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "link-tracker/docs"
	"link-tracker/internal/config"
	"link-tracker/internal/handler"
	"link-tracker/internal/listing"
	"link-tracker/internal/middleware"
	"link-tracker/internal/model"
	"link-tracker/internal/recorder"
	"link-tracker/internal/redirector"
	"link-tracker/internal/store"
	"link-tracker/pkg/database"
	auth "link-tracker/pkg/jwt"
	"link-tracker/pkg/logger"
	"link-tracker/pkg/redis"
)

// @title 链接追踪服务 API
// @version 1.0
// @description 链接登记、点击统计与跳转
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 配置加载前先输出到控制台
	logger.InitLogger(logger.Options{Level: "info"})
	sugaredLogger := zap.S()

	path := *configPath
	if _, err := os.Stat(path); err != nil {
		sugaredLogger.Warnf("配置文件不可用，使用默认配置: %v", err)
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		sugaredLogger.Fatalf("配置加载失败: %v", err)
	}

	logger.InitLogger(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	defer func() {
		if err := logger.Logger.Sync(); err != nil {
			fmt.Println("日志同步失败:", err)
		}
	}()
	sugaredLogger = zap.S()

	db, err := database.Open(database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Name:         cfg.Database.Name,
		Charset:      cfg.Database.Charset,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}, sugaredLogger, model.All()...)
	if err != nil {
		sugaredLogger.Fatalf("数据库初始化失败: %v", err)
	}
	sugaredLogger.Infof("✅ 数据库连接成功 (%s)", cfg.Database.Driver)

	storeOpts := []store.Option{store.WithLogger(sugaredLogger)}
	var rdb *redisClient.Client
	if cfg.Cache.Host != "" {
		rdb, err = redis.NewClient(redis.Options{
			Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
		})
		if err != nil {
			sugaredLogger.Warnf("缓存连接失败，upsert 不加分布式锁: %v", err)
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					sugaredLogger.Errorf("关闭 Redis 连接失败: %v", err)
				}
			}()
			storeOpts = append(storeOpts, store.WithLocker(upsertLocker{locker: redis.NewLocker(rdb)}))
			sugaredLogger.Info("✅ 缓存连接成功")
		}
	}

	linkStore := store.New(db, storeOpts...)
	clickRecorder := recorder.New(linkStore, time.Now, sugaredLogger)
	redir := redirector.New(clickRecorder, linkStore, redirector.OptionsFromConfig(cfg.Redirect), sugaredLogger)
	listingService := listing.New(linkStore, cfg.Listing, cfg.Tracking)

	tokenManager := auth.NewManager(authSecret(cfg, sugaredLogger), cfg.Auth.Issuer, cfg.Auth.ExpirationHours)
	sugaredLogger.Info("✅ 认证管理器初始化成功")

	if err := createAdminUser(cfg, db, sugaredLogger); err != nil {
		sugaredLogger.Errorf("创建管理员失败: %v", err)
	}

	if cfg.App.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapRecovery(logger.Logger, true))
	router.Use(middleware.GinZapLogger(logger.Logger))

	handler.RegisterRoutes(router, handler.Routes{
		Links:           handler.NewLinkHandler(linkStore, listingService, rdb, sugaredLogger),
		Tracking:        handler.NewTrackingHandler(redir, cfg.Tracking, sugaredLogger),
		Auth:            handler.NewAuthHandler(db, tokenManager, time.Now, sugaredLogger),
		TrackingPath:    cfg.Tracking.Path,
		AuthMiddleware:  middleware.AuthMiddleware(tokenManager),
		AdminMiddleware: middleware.AdminMiddleware(),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		sugaredLogger.Infof("🚀 服务启动成功, 访问 http://localhost:%d", cfg.Server.Port)
		sugaredLogger.Infof("📚 Swagger 文档地址: http://localhost:%d/swagger/index.html", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugaredLogger.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugaredLogger.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		sugaredLogger.Errorf("服务关闭超时: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	sugaredLogger.Info("服务已退出")
}

// 未配置密钥时仅允许在非生产环境使用临时密钥
func authSecret(cfg *config.Config, log *zap.SugaredLogger) string {
	if cfg.Auth.Secret != "" {
		return cfg.Auth.Secret
	}
	log.Warn("未配置 auth.secret，使用开发密钥")
	return "link-tracker-dev-secret"
}

func createAdminUser(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) error {
	password := cfg.Auth.AdminPassword
	if password == "" {
		if cfg.App.Mode == "production" {
			log.Warn("未配置 auth.admin_password，跳过创建管理员")
			return nil
		}
		password = "admin"
	}

	created, err := handler.EnsureAdmin(db, cfg.Auth.AdminUsername, password)
	if err != nil {
		return err
	}
	if created {
		log.Infow("✅ 默认管理员创建成功", "username", cfg.Auth.AdminUsername)
	}
	return nil
}
