package roster

import (
	"errors"
	"fmt"
	"strings"

	"groupdraw-server-go/models"
)

var (
	// ErrMalformedRoster is returned when a roster row cannot be converted
	ErrMalformedRoster = errors.New("malformed roster")
	// ErrDuplicateStudent is returned when a name appears twice in a roster
	ErrDuplicateStudent = errors.New("duplicate student")
)

// Roster is the ordered list of students of a session, indexed by name
type Roster struct {
	students []models.Student
	index    map[string]models.Cohort
}

// Stats holds the counters shown next to a roster
type Stats struct {
	Total     int `json:"total"`
	Newcomers int `json:"calouros"`
	Returners int `json:"veteranos"`
}

// New builds a Roster, trimming names and rejecting duplicates and unknown cohorts
func New(students []models.Student) (*Roster, error) {
	r := &Roster{
		students: make([]models.Student, 0, len(students)),
		index:    make(map[string]models.Cohort, len(students)),
	}
	for _, s := range students {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty student name", ErrMalformedRoster)
		}
		if !s.Cohort.Valid() {
			return nil, fmt.Errorf("%w: student %q has unknown cohort %d", ErrMalformedRoster, name, s.Cohort)
		}
		if _, exists := r.index[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStudent, name)
		}
		r.index[name] = s.Cohort
		r.students = append(r.students, models.Student{Name: name, Cohort: s.Cohort})
	}
	return r, nil
}

// Students returns a copy of the roster in load order
func (r *Roster) Students() []models.Student {
	if r == nil {
		return nil
	}
	out := make([]models.Student, len(r.students))
	copy(out, r.students)
	return out
}

// Cohort looks up the cohort of a student by exact name
func (r *Roster) Cohort(name string) (models.Cohort, bool) {
	if r == nil {
		return 0, false
	}
	c, ok := r.index[name]
	return c, ok
}

// Contains reports whether name is on the roster
func (r *Roster) Contains(name string) bool {
	_, ok := r.Cohort(name)
	return ok
}

// Len returns the number of students
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.students)
}

// Stats counts students per cohort
func (r *Roster) Stats() Stats {
	var st Stats
	if r == nil {
		return st
	}
	for _, s := range r.students {
		st.Total++
		switch s.Cohort {
		case models.Newcomer:
			st.Newcomers++
		case models.Returner:
			st.Returners++
		}
	}
	return st
}

// Filter returns the students whose cohort is in cohorts (all when empty)
// and whose name contains fragment, case-insensitively.
func (r *Roster) Filter(cohorts []models.Cohort, fragment string) []models.Student {
	if r == nil {
		return nil
	}
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	out := []models.Student{}
	for _, s := range r.students {
		if len(cohorts) > 0 && !containsCohort(cohorts, s.Cohort) {
			continue
		}
		if fragment != "" && !strings.Contains(strings.ToLower(s.Name), fragment) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func containsCohort(cohorts []models.Cohort, c models.Cohort) bool {
	for _, x := range cohorts {
		if x == c {
			return true
		}
	}
	return false
}
