package migrations

import (
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createStudentsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_students",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.StudentModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_students_department_level_status ON students (department, level, status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.StudentModel{})
		},
	}
}
