package domain

// StudentFilter selects students by exact field match. Nil fields match everything.
type StudentFilter struct {
	Department *string
	Level      *string
	Status     *StudentStatus
}

func (f StudentFilter) IsEmpty() bool {
	return f.Department == nil && f.Level == nil && f.Status == nil
}

func (f StudentFilter) Matches(s Student) bool {
	if f.Department != nil && s.Department != *f.Department {
		return false
	}
	if f.Level != nil && s.Level != *f.Level {
		return false
	}
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	return true
}

// FilterStudents returns the students matching every provided filter field.
func FilterStudents(students []Student, filter StudentFilter) []Student {
	out := make([]Student, 0, len(students))
	for _, s := range students {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}
