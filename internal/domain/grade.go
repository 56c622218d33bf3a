package domain

import (
	"fmt"
	"math"
)

// Score bounds for a single course result.
const (
	MaxCAScore    = 30.0
	MaxExamScore  = 70.0
	MaxTotalScore = 100.0
)

// Grade is a letter grade with its grade point.
type Grade struct {
	Letter string
	Points float64
}

type gradeBand struct {
	min   float64
	grade Grade
}

// gradeBands must stay sorted by descending min.
var gradeBands = []gradeBand{
	{min: 70, grade: Grade{Letter: "A", Points: 5.0}},
	{min: 60, grade: Grade{Letter: "B", Points: 4.0}},
	{min: 50, grade: Grade{Letter: "C", Points: 3.0}},
	{min: 45, grade: Grade{Letter: "D", Points: 2.0}},
	{min: 40, grade: Grade{Letter: "E", Points: 1.0}},
	{min: 0, grade: Grade{Letter: "F", Points: 0.0}},
}

// GradeFor maps a total score to its grade. Totals below zero fall to F.
func GradeFor(total float64) Grade {
	for _, band := range gradeBands {
		if total >= band.min {
			return band.grade
		}
	}
	return gradeBands[len(gradeBands)-1].grade
}

// GradedScore is the outcome of grading one CA/exam pair.
type GradedScore struct {
	Total  float64
	Letter string
	Points float64
}

// ValidateScores checks CA, exam and total bounds.
func ValidateScores(ca, exam float64) error {
	if math.IsNaN(ca) || ca < 0 || ca > MaxCAScore {
		return fmt.Errorf("%w: CA score must be between 0 and %.0f", ErrValidation, MaxCAScore)
	}
	if math.IsNaN(exam) || exam < 0 || exam > MaxExamScore {
		return fmt.Errorf("%w: exam score must be between 0 and %.0f", ErrValidation, MaxExamScore)
	}
	if ca+exam > MaxTotalScore {
		return fmt.Errorf("%w: total score cannot exceed %.0f", ErrValidation, MaxTotalScore)
	}
	return nil
}

// ComputeGrade validates the scores and grades their sum.
func ComputeGrade(ca, exam float64) (GradedScore, error) {
	if err := ValidateScores(ca, exam); err != nil {
		return GradedScore{}, err
	}

	total := ca + exam
	grade := GradeFor(total)
	return GradedScore{
		Total:  total,
		Letter: grade.Letter,
		Points: grade.Points,
	}, nil
}

// WeightedGrade is one (grade point, credit units) pair fed into CGPA.
type WeightedGrade struct {
	Points      float64
	CreditUnits int
}

// ComputeCGPA returns sum(points*credits)/sum(credits) rounded to two places.
// It reports false when no credit units are present.
func ComputeCGPA(grades []WeightedGrade) (float64, bool) {
	var weighted float64
	var credits int
	for _, g := range grades {
		if g.CreditUnits <= 0 {
			continue
		}
		weighted += g.Points * float64(g.CreditUnits)
		credits += g.CreditUnits
	}
	if credits == 0 {
		return 0, false
	}
	return math.Round(weighted/float64(credits)*100) / 100, true
}
