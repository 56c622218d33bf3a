package migrations

import (
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createCoursesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_courses",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CourseModel{}); err != nil {
				return err
			}
			return tx.Exec(`ALTER TABLE courses ADD CONSTRAINT chk_courses_credit_units CHECK (credit_units > 0)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CourseModel{})
		},
	}
}
