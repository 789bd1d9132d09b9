package main

import (
	"context"
	"log"

	_ "helpqueue/docs"
	"helpqueue/internal/auth"
	"helpqueue/internal/config"
	"helpqueue/internal/gateway"
	"helpqueue/internal/handlers"
	"helpqueue/internal/queue"
	"helpqueue/internal/storage"
	"helpqueue/internal/tasks"
	"helpqueue/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @Title						Онлайн очередь за помощью на практике
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	config.LoadEnv()
	cfg := config.Load()

	db, err := storage.ConnectDatabase(cfg.DB)
	if err != nil {
		log.Fatal("Ошибка подключения к базе данных: ", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}

	rdb, err := storage.InitRedis(cfg.Redis)
	if err != nil {
		log.Fatal("Ошибка подключения к Redis: ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(cfg.Queue.SubscriberBuffer)
	var (
		locker    queue.Locker    = queue.NewLocalLocker()
		publisher queue.Publisher = hub
	)
	if rdb != nil {
		locker = storage.NewRedisLocker(rdb, cfg.Queue.LockTTL)
		relay := ws.NewRelay(hub, rdb, cfg.Queue.SubscriberBuffer*64)
		go relay.Run(ctx)
		publisher = relay
		log.Println("Redis подключен: блокировки и события общие для всех экземпляров")
	}

	queueStore := storage.NewQueueStore(db)
	engine := queue.New(queue.Options{
		Store:        queueStore,
		Locker:       locker,
		Publisher:    publisher,
		FlushGrace:   cfg.Queue.FlushGrace,
		FlushTimeout: cfg.Queue.FlushTimeout,
	})
	defer engine.Close()

	broadcasts := storage.NewBroadcastStore(db)
	gw := gateway.New(gateway.Options{
		Engine:        engine,
		Oracle:        storage.NewRoleOracle(db),
		Hub:           hub,
		Publisher:     publisher,
		Broadcasts:    broadcasts,
		RetryAttempts: cfg.Queue.RetryAttempts,
		RetryBackoff:  cfg.Queue.RetryBackoff,
	})

	scheduler := tasks.InitScheduler(cfg.Queue.SweepSpec, &tasks.Planner{
		Idle:       queueStore,
		Engine:     engine,
		Grace:      cfg.Queue.FlushGrace,
		Broadcasts: broadcasts,
		Notify:     gw,
		Retention:  cfg.BroadcastRetention,
	})
	defer scheduler.Stop()

	h := &handlers.Handler{
		DB:        db,
		JWT:       cfg.JWT,
		Gateway:   gw,
		Subjects:  storage.NewSubjectStore(db, rdb, cfg.SubjectsCacheTTL),
		Positions: queueStore,
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handlers.RegisterRoutes(r, h, auth.AuthMiddleware(cfg.JWT.AccessSecret))

	if err := r.Run(cfg.Address); err != nil {
		log.Fatal("Ошибка запуска сервера...", err.Error())
	}
}
