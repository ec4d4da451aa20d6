package repository

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/config"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// legacyClientIndex deduplicated client ids per sender across all conversations.
const legacyClientIndex = "idx_client_sender"

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Conversation{},
		&models.Participant{},
		&models.ReadState{},
		&models.Message{},
		&models.Attachment{},
		&models.MessageSeen{},
		&models.Milestone{},
		&models.PaymentOrder{},
		&models.OutboxEvent{},
	); err != nil {
		return err
	}

	if m := db.Migrator(); m.HasIndex(&models.Message{}, legacyClientIndex) {
		if err := m.DropIndex(&models.Message{}, legacyClientIndex); err != nil {
			return fmt.Errorf("drop %s: %w", legacyClientIndex, err)
		}
	}
	return nil
}
