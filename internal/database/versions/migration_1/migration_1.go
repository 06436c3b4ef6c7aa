package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type PrepareJob struct {
	DroppedEmptyRows int `gorm:"default:0"`
	DroppedLabelRows int `gorm:"default:0"`
}

var columns = []string{"dropped_empty_rows", "dropped_label_rows"}

func Migration(db *gorm.DB) error {
	for _, column := range columns {
		if err := db.Migrator().AddColumn(&PrepareJob{}, column); err != nil {
			return fmt.Errorf("error adding %s column: %w", column, err)
		}

		if err := db.Model(&PrepareJob{}).
			Where(column+" IS NULL").
			Update(column, 0).Error; err != nil {
			return fmt.Errorf("error setting default value for %s: %w", column, err)
		}
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	for _, column := range columns {
		if err := db.Migrator().DropColumn(&PrepareJob{}, column); err != nil {
			return fmt.Errorf("error dropping %s column: %w", column, err)
		}
	}

	return nil
}
