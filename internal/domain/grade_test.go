package domain

import (
	"errors"
	"testing"
)

func TestGradeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total      float64
		wantLetter string
		wantPoints float64
	}{
		{total: 100, wantLetter: "A", wantPoints: 5.0},
		{total: 70, wantLetter: "A", wantPoints: 5.0},
		{total: 69.9, wantLetter: "B", wantPoints: 4.0},
		{total: 60, wantLetter: "B", wantPoints: 4.0},
		{total: 59.5, wantLetter: "C", wantPoints: 3.0},
		{total: 50, wantLetter: "C", wantPoints: 3.0},
		{total: 45, wantLetter: "D", wantPoints: 2.0},
		{total: 44.99, wantLetter: "E", wantPoints: 1.0},
		{total: 40, wantLetter: "E", wantPoints: 1.0},
		{total: 39.9, wantLetter: "F", wantPoints: 0.0},
		{total: 0, wantLetter: "F", wantPoints: 0.0},
		{total: -5, wantLetter: "F", wantPoints: 0.0},
	}

	for _, tt := range tests {
		got := GradeFor(tt.total)
		if got.Letter != tt.wantLetter || got.Points != tt.wantPoints {
			t.Errorf("GradeFor(%v) = %s/%.1f, want %s/%.1f", tt.total, got.Letter, got.Points, tt.wantLetter, tt.wantPoints)
		}
	}
}

func TestGradeForCoversWholeRange(t *testing.T) {
	t.Parallel()

	for i := 0; i <= 1000; i++ {
		total := float64(i) / 10
		matches := 0
		for j, band := range gradeBands {
			upper := MaxTotalScore + 1
			if j > 0 {
				upper = gradeBands[j-1].min
			}
			if total >= band.min && total < upper {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("total %v matched %d bands, want 1", total, matches)
		}
	}
}

func TestComputeGrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ca, exam   float64
		wantErr    bool
		wantTotal  float64
		wantLetter string
	}{
		{name: "ca above 30", ca: 31, exam: 40, wantErr: true},
		{name: "exam above 70", ca: 10, exam: 71, wantErr: true},
		{name: "total above 100", ca: 30.5, exam: 70, wantErr: true},
		{name: "negative ca", ca: -1, exam: 50, wantErr: true},
		{name: "top of range", ca: 30, exam: 70, wantTotal: 100, wantLetter: "A"},
		{name: "ninety five", ca: 25, exam: 70, wantTotal: 95, wantLetter: "A"},
		{name: "pass mark", ca: 15, exam: 25, wantTotal: 40, wantLetter: "E"},
		{name: "fail", ca: 10, exam: 20, wantTotal: 30, wantLetter: "F"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ComputeGrade(tt.ca, tt.exam)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ComputeGrade() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ComputeGrade() unexpected error = %v", err)
			}
			if got.Total != tt.wantTotal || got.Letter != tt.wantLetter {
				t.Fatalf("ComputeGrade() = %+v, want total %v letter %s", got, tt.wantTotal, tt.wantLetter)
			}
		})
	}
}

func TestComputeCGPA(t *testing.T) {
	t.Parallel()

	got, ok := ComputeCGPA([]WeightedGrade{
		{Points: 5, CreditUnits: 3},
		{Points: 4, CreditUnits: 2},
		{Points: 2, CreditUnits: 1},
	})
	if !ok {
		t.Fatal("ComputeCGPA() ok = false, want true")
	}
	// (15 + 8 + 2) / 6 = 4.1666...
	if got != 4.17 {
		t.Fatalf("ComputeCGPA() = %v, want 4.17", got)
	}

	if _, ok := ComputeCGPA(nil); ok {
		t.Fatal("ComputeCGPA(nil) ok = true, want false")
	}
	if _, ok := ComputeCGPA([]WeightedGrade{{Points: 5, CreditUnits: 0}}); ok {
		t.Fatal("zero credit units should not count")
	}
}
