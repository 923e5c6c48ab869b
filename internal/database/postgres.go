package database

import (
	"fmt"
	"log"

	"github.com/ispops/backend/internal/config"
	"github.com/ispops/backend/internal/models"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Connect(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
	}

	DB = db
	log.Println("Database connected successfully")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		// Directory mirrors and catalog
		&models.Engineer{},
		&models.Reporter{},
		&models.IssueType{},
		// Lifecycle
		&models.Complaint{},
		&models.StatusHistoryEntry{},
		&models.EngineerWorkload{},
		// Delivery audit
		&models.NotificationLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed")
	return nil
}

// DefaultIssueTypes is the catalog installed on an empty database.
func DefaultIssueTypes() []models.IssueType {
	return []models.IssueType{
		{ComplaintType: models.ComplaintTypeWIFI, Name: "No Internet", Description: "Connection is completely down", SortOrder: 1, IsActive: true},
		{ComplaintType: models.ComplaintTypeWIFI, Name: "Slow Speed", Description: "Throughput below the subscribed plan", SortOrder: 2, IsActive: true},
		{ComplaintType: models.ComplaintTypeWIFI, Name: "Frequent Disconnection", Description: "Link drops intermittently", SortOrder: 3, IsActive: true},
		{ComplaintType: models.ComplaintTypeWIFI, Name: "Router Issue", Description: "CPE hardware or configuration fault", SortOrder: 4, IsActive: true},
		{ComplaintType: models.ComplaintTypeWIFI, Name: "Fiber Cut", Description: "Physical damage on the drop cable", SortOrder: 5, IsActive: true},
		{ComplaintType: models.ComplaintTypeCCTV, Name: "Camera Offline", Description: "Camera not reachable", SortOrder: 1, IsActive: true},
		{ComplaintType: models.ComplaintTypeCCTV, Name: "No Recording", Description: "DVR/NVR is not recording", SortOrder: 2, IsActive: true},
		{ComplaintType: models.ComplaintTypeCCTV, Name: "Blurry Image", Description: "Focus, lens or IR problem", SortOrder: 3, IsActive: true},
		{ComplaintType: models.ComplaintTypeCCTV, Name: "Remote View Not Working", Description: "Mobile or web live view fails", SortOrder: 4, IsActive: true},
		{ComplaintType: models.ComplaintTypeCCTV, Name: "Power Issue", Description: "Adapter or PoE supply fault", SortOrder: 5, IsActive: true},
	}
}

func Seed(db *gorm.DB) error {
	log.Println("Seeding database...")

	var count int64
	if err := db.Model(&models.IssueType{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count issue types: %w", err)
	}
	if count > 0 {
		log.Println("Issue type catalog already present, skipping seed")
		return nil
	}

	for _, issueType := range DefaultIssueTypes() {
		issueType := issueType
		if err := db.Create(&issueType).Error; err != nil {
			log.Printf("Failed to create issue type %s/%s: %v", issueType.ComplaintType, issueType.Name, err)
		}
	}

	log.Println("Database seeding completed")
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
