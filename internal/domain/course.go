package domain

type Course struct {
	ID          string
	Code        string
	Title       string
	CreditUnits int
	Department  string
	Level       string
	Semester    string
	IsActive    bool
}
