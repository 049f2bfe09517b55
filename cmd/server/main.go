// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemchat-go/internal/config"
	"gemchat-go/internal/handler"
	"gemchat-go/internal/middleware"
	"gemchat-go/internal/pipeline"
	"gemchat-go/internal/repository"
	"gemchat-go/internal/service"
	"gemchat-go/pkg/database"
	"gemchat-go/pkg/es"
	"gemchat-go/pkg/gemini"
	"gemchat-go/pkg/kafka"
	"gemchat-go/pkg/log"
	"gemchat-go/pkg/storage"
	"gemchat-go/pkg/token"
	"gemchat-go/pkg/unsplash"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB, database.RDB)

	// 5. 初始化外部客户端与 Service（依赖注入）
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	llmClient := gemini.NewClient(cfg.Gemini)
	stockClient := unsplash.NewClient(cfg.Unsplash)
	imageStore := storage.NewImageStore(cfg.MinIO)
	producer := kafka.NewProducer(cfg.Kafka)

	imageService := service.NewImageService(stockClient, llmClient, cfg.Placeholder)
	conversationService := service.NewConversationService(conversationRepo, messageRepo)
	chatService := service.NewChatService(conversationRepo, messageRepo, llmClient, imageService, imageStore, producer)
	searchService := service.NewSearchService(cfg.Elasticsearch)

	// 6. 启动后台索引消费者
	indexer := pipeline.NewIndexer(cfg.Elasticsearch)
	go kafka.StartConsumer(cfg.Kafka, indexer)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由。身份由外部提供方签发的令牌携带，所有业务路由都要求认证。
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		conversations := apiV1.Group("/conversations")
		{
			conversations.GET("", handler.NewConversationHandler(conversationService).ListConversations)
			conversations.POST("", handler.NewConversationHandler(conversationService).CreateConversation)
			conversations.GET("/:conversationId/messages", handler.NewConversationHandler(conversationService).ListMessages)
			conversations.PUT("/:conversationId", handler.NewConversationHandler(conversationService).RenameConversation)
			conversations.DELETE("/:conversationId", handler.NewConversationHandler(conversationService).DeleteConversation)
		}

		chat := apiV1.Group("/chat")
		{
			chat.POST("/send", handler.NewChatHandler(chatService).SendMessage)
		}

		search := apiV1.Group("/search")
		{
			search.GET("/messages", handler.NewSearchHandler(searchService).SearchMessages)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
