package migrations

import (
	"github.com/edunotify/edunotify/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createResultsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_results",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ResultModel{}); err != nil {
				return err
			}
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_results_status ON results (status)`,
				`CREATE INDEX IF NOT EXISTS idx_results_student_term ON results (student_id, semester, academic_year)`,
				`ALTER TABLE results ADD CONSTRAINT chk_results_scores CHECK (ca_score BETWEEN 0 AND 30 AND exam_score BETWEEN 0 AND 70 AND total_score <= 100)`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ResultModel{})
		},
	}
}
