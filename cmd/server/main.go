// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"future-self-go/internal/config"
	"future-self-go/internal/handler"
	"future-self-go/internal/middleware"
	"future-self-go/internal/persona"
	"future-self-go/internal/pipeline"
	"future-self-go/internal/repository"
	"future-self-go/internal/service"
	"future-self-go/pkg/database"
	"future-self-go/pkg/embedding"
	"future-self-go/pkg/es"
	"future-self-go/pkg/kafka"
	"future-self-go/pkg/llm"
	"future-self-go/pkg/log"
	"future-self-go/pkg/storage"
	"future-self-go/pkg/tika"
	"future-self-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	// 1. 初始化配置，FUTURESELF_CONFIG 可以覆盖配置文件路径
	configPath := os.Getenv("FUTURESELF_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	ctx := context.Background()

	// 3. 初始化数据库和 Redis
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if cfg.Database.MySQL.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
	}
	rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}

	// 4. 初始化 Repository
	userRepo := repository.NewGormUserRepository(db)
	memoryRepo := repository.NewGormMemoryRepository(db)
	conversationRepo := repository.NewGormConversationRepository(db)
	blacklist := repository.NewRedisTokenBlacklist(rdb)
	historyCache := repository.NewRedisHistoryCache(rdb, cfg.Persona.MaxHistoryMessages,
		time.Duration(cfg.Persona.HistoryCacheHours)*time.Hour)

	// 5. 可选的外部能力：对象存储、向量化、检索索引
	var objects storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.Warnf("MinIO 初始化失败，附件功能不可用: %v", err)
		} else {
			objects = store
		}
	}

	var embedder embedding.Client
	if c, err := embedding.NewClient(cfg.Embedding); err != nil {
		log.Warnf("Embedding 未启用，检索退化为纯文本: %v", err)
	} else {
		embedder = c
	}

	var (
		publisher     service.IndexPublisher
		searchBackend service.SearchBackend
		queryEmbedder service.QueryEmbedder
		producer      *kafka.Producer
	)
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.Elasticsearch.Addresses != "" {
		vectorDims := 0
		if embedder != nil {
			vectorDims = cfg.Embedding.Dimensions
			queryEmbedder = embedder
		}
		esClient, err := es.NewClient(ctx, cfg.Elasticsearch, vectorDims)
		if err != nil {
			log.Warnf("Elasticsearch 初始化失败，记忆检索不可用: %v", err)
		} else {
			searchBackend = esClient
			indexer := newIndexer(cfg, memoryRepo, objects, esClient, embedder)
			if cfg.Kafka.Brokers != "" {
				producer = kafka.NewProducer(cfg.Kafka)
				publisher = producer
				// 启动后台 Kafka 消费者
				go kafka.NewConsumer(cfg.Kafka, indexer, rdb).Run(consumerCtx)
			} else {
				publisher = pipeline.NewInlinePublisher(indexer)
			}
		}
	}

	// 6. 人格能力：缺少补全服务凭证时不初始化，相关接口返回 503
	responder := newResponder(cfg, memoryRepo)

	// 7. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTokenExpireMinutes)*time.Minute,
		time.Duration(cfg.JWT.RefreshTokenExpireDays)*24*time.Hour)
	userService := service.NewUserService(userRepo, blacklist, jwtManager)
	memoryService := service.NewMemoryService(memoryRepo, objects, publisher)
	conversationService := service.NewConversationService(conversationRepo, historyCache, responder)
	searchService := service.NewSearchService(searchBackend, queryEmbedder, memoryRepo)
	chatService := service.NewChatService(conversationService)
	uploadService := service.NewUploadService(
		repository.NewUploadRepository(rdb, service.DefaultUploadSessionTTL),
		memoryService, objects, service.DefaultChunkSize, cfg.Server.MaxAttachmentMB<<20)
	var previewExtractor service.TextExtractor
	if tc := tika.NewClient(cfg.Tika); tc != nil {
		previewExtractor = tc
	}
	documentService := service.NewDocumentService(memoryService, objects, previewExtractor, service.DefaultPreviewChars)

	var authLimiter *middleware.RateLimiter
	if cfg.RateLimit.AuthMaxRequests > 0 {
		authLimiter = middleware.NewRateLimiter(rdb, cfg.RateLimit.AuthMaxRequests,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	}

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	router := handler.NewRouter(handler.Services{
		Users:         userService,
		Memories:      memoryService,
		Conversations: conversationService,
		Search:        searchService,
		Chat:          chatService,
		Uploads:       uploadService,
		Documents:     documentService,
	}, handler.RouterOptions{
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthLimiter:    authLimiter,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           middleware.CORS(cfg.Server.AllowedOrigins)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	stopConsumer()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if err := rdb.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("服务已优雅关闭")
}

// newResponder 在补全服务已配置时组装人格服务，否则返回 nil，conversation 接口返回 503。
func newResponder(cfg *config.Config, memories repository.MemoryRepository) service.PersonaResponder {
	if !cfg.LLMConfigured() {
		log.Warnf("补全服务未配置 (llm.api_key 为空)，人格对话不可用")
		return nil
	}
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Warnf("补全服务初始化失败，人格对话不可用: %v", err)
		return nil
	}
	return persona.NewService(persona.NewMemoryAccessor(memories), llmClient,
		cfg.Persona.MemoryLimit, cfg.Persona.MaxHistoryMessages)
}

// newIndexer 组装索引管道。没有对象存储或 Tika 时附件文本不参与索引。
func newIndexer(cfg *config.Config, memories repository.MemoryRepository, objects storage.ObjectStore,
	index pipeline.SearchIndex, embedder embedding.Client) *pipeline.Indexer {
	var extractor pipeline.TextExtractor
	if tc := tika.NewClient(cfg.Tika); tc != nil && objects != nil {
		extractor = tc
	}
	var indexEmbedder pipeline.Embedder
	if embedder != nil {
		indexEmbedder = embedder
	}
	return pipeline.NewIndexer(memories, objects, index, extractor, indexEmbedder)
}
