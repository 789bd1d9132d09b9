package storage

import (
	"context"
	"fmt"
	"time"

	"helpqueue/internal/config"
	"helpqueue/internal/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectDatabase(cfg config.DB) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("подключение к базе данных: %w", err)
	}
	fmt.Println("Подключение к базе данных успешно!")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// ConnectTestingDatabase подключается к базе из TEST_DB_*; ok == false, если она не настроена.
func ConnectTestingDatabase() (db *gorm.DB, ok bool, err error) {
	cfg, ok := config.TestingDB()
	if !ok {
		return nil, false, nil
	}
	db, err = ConnectDatabase(cfg)
	if err != nil {
		return nil, true, err
	}
	if err := Migrate(db); err != nil {
		return nil, true, err
	}
	return db, true, nil
}

// InitRedis возвращает nil, если Redis не настроен.
func InitRedis(cfg config.Redis) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("подключение к Redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
