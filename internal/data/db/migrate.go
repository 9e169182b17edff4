package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&review.ReviewRun{},
	)
}
