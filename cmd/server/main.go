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

	"github.com/gin-gonic/gin"

	"study-indexer-go/internal/config"
	"study-indexer-go/internal/handler"
	"study-indexer-go/internal/middleware"
	"study-indexer-go/internal/model"
	"study-indexer-go/internal/pipeline"
	"study-indexer-go/internal/registry"
	"study-indexer-go/internal/repository"
	"study-indexer-go/internal/service"
	"study-indexer-go/pkg/database"
	"study-indexer-go/pkg/embedding"
	"study-indexer-go/pkg/kafka"
	"study-indexer-go/pkg/log"
	"study-indexer-go/pkg/storage"
	"study-indexer-go/pkg/tika"
	"study-indexer-go/pkg/token"
	"study-indexer-go/pkg/vectorstore"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	db := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err := db.AutoMigrate(&model.DocumentRecord{}); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	rdb := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 初始化向量存储后端
	reg := registry.New()
	var store vectorstore.Store
	switch cfg.VectorStore.Backend {
	case "chromem":
		chromemStore, err := vectorstore.NewChromemStore(cfg.VectorStore.ChromemPath)
		if err != nil {
			log.Fatalf("chromem 初始化失败: %v", err)
		}
		store = chromemStore
	default:
		esClient, err := vectorstore.NewESClient(cfg.Elasticsearch)
		if err != nil {
			log.Fatalf("es 初始化失败: %v", err)
		}
		store = vectorstore.NewESStore(esClient, cfg.Elasticsearch.IndexPrefix)
	}

	// 启动时为每个集合确保索引存在
	ensureCtx, cancelEnsure := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelEnsure()
	for _, def := range reg.All() {
		if err := store.EnsureCollection(ensureCtx, def.Schema(cfg.Embedding.Dimensions)); err != nil {
			log.Fatalf("集合 '%s' 初始化失败: %v", def.Name, err)
		}
		log.Infof("集合 '%s' 就绪", def.Name)
	}

	// 5. 初始化 Repository 与外部客户端
	docRepo := repository.NewDocumentRepository(db)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewCachedClient(embedding.NewClient(cfg.Embedding), rdb, cfg.Embedding.CacheTTL)

	// 6. 初始化 Service (依赖注入)
	searchService := service.NewSearchService(reg, embeddingClient, store, cfg.Search.OverfetchMultiplier)
	ingestService := service.NewIngestService(reg, embeddingClient, store, docRepo)

	// 7. 初始化导入管道并启动后台 Kafka 消费者
	var producer *kafka.Producer
	var storageClient *storage.Client
	if cfg.Kafka.Brokers != "" {
		storageClient = storage.NewClient(cfg.MinIO)
		processor := pipeline.NewProcessor(
			storageClient,
			tikaClient,
			ingestService,
			docRepo,
			cfg.Search.ChunkSize,
			cfg.Search.ChunkOverlap,
		)
		producer = kafka.NewProducer(cfg.Kafka)
		go kafka.StartConsumer(cfg.Kafka, rdb, processor)
	} else {
		log.Warnf("未配置 Kafka broker，课程内容导入管道不可用")
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 9. 注册路由
	searchHandler := handler.NewSearchHandler(searchService, cfg.Search.Timeout)
	documentHandler := handler.NewDocumentHandler(ingestService)
	adminHandler := handler.NewAdminHandler(ingestService, producer, storageClient, reg)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		// 每个集合的 search/add 路由来自注册表，路由形态完全由集合定义驱动
		for _, def := range reg.All() {
			group := apiV1.Group("/" + def.Route)
			group.POST("/"+def.SearchVerb, searchHandler.Search(def.Name))
			group.POST("/add", documentHandler.Add(def.Name))
		}

		apiV1.DELETE("/collections/:collection/documents/:id", documentHandler.Delete)

		admin := apiV1.Group("")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.POST("/course-content/import", adminHandler.ImportCourseContent)
			admin.POST("/admin/reindex", adminHandler.Reindex)
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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
