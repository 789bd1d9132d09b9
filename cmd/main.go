package main

import (
	"errors"
	"log"
	"os"

	"helpqueue/internal/config"
	"helpqueue/internal/models"
	"helpqueue/internal/storage"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Первичная настройка: миграции и администратор из ADMIN_EMAIL / ADMIN_PASSWORD.
// Существующий пользователь с этим email получает права Admin, пароль не меняется.
func main() {
	config.LoadEnv()
	cfg := config.Load()

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("Не заданы ADMIN_EMAIL и ADMIN_PASSWORD")
	}

	db, err := storage.ConnectDatabase(cfg.DB)
	if err != nil {
		log.Fatal("Ошибка подключения к базе данных: ", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}

	var user models.User
	err = db.Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		if err := db.Model(&user).Update("rights", models.RightsAdmin).Error; err != nil {
			log.Fatal("Ошибка выдачи прав администратора: ", err)
		}
		log.Printf("Пользователь %s назначен администратором\n", email)
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("Ошибка хеширования пароля: ", err)
		}
		user = models.User{
			Name:         "Admin",
			Surname:      "Admin",
			Email:        email,
			PasswordHash: string(hash),
			Rights:       models.RightsAdmin,
		}
		if err := db.Create(&user).Error; err != nil {
			log.Fatal("Ошибка создания администратора: ", err)
		}
		log.Printf("Администратор %s создан\n", email)
	default:
		log.Fatal("Ошибка поиска пользователя: ", err)
	}
}
