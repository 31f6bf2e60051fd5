package database

import (
	"fmt"
	"log"

	"github.com/anjiri1684/transport_portal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func gormConfig() *gorm.Config {
	return &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	}
}

// ConnectDB opens the database named by driver ("postgres" or "sqlite") and
// stores it in DB.
func ConnectDB(driver, dsn string) {
	var err error
	switch driver {
	case "", "postgres":
		DB, err = gorm.Open(postgres.Open(dsn), gormConfig())
	case "sqlite":
		DB, err = OpenSQLite(dsn)
	default:
		err = fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

// OpenSQLite opens a single-connection SQLite database. One connection keeps
// ":memory:" databases alive and serialises writers the way SQLite wants.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	cfg := gormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.RouteFee{},
		&models.PaymentRecord{},
		&models.PaymentRefund{},
		&models.WebhookDelivery{},
	)
}
