package models

// Cohort is the roster tag of a student ("Turma" column)
type Cohort int

const (
	Newcomer Cohort = 1 // calouro
	Returner Cohort = 2 // veterano
)

// Valid reports whether c is a known cohort tag
func (c Cohort) Valid() bool {
	return c == Newcomer || c == Returner
}

// Label returns the human readable cohort name
func (c Cohort) Label() string {
	switch c {
	case Newcomer:
		return "Calouro"
	case Returner:
		return "Veterano"
	default:
		return "Desconhecido"
	}
}

// Student represents a roster entry
type Student struct {
	Name   string `json:"nome"`  // Trimmed, unique within a roster
	Cohort Cohort `json:"turma"` // 1 = newcomer, 2 = returner
}

// Group is an ordered list of student names
type Group []string

// Draw is one saved assignment run
type Draw struct {
	ID        int     `json:"id"`
	Name      string  `json:"nome"`
	Timestamp string  `json:"data"` // TimestampLayout
	Automatic []Group `json:"grupos_automaticos"`
	Manual    []Group `json:"grupos_manuais"`
}

// TimestampLayout is the format of Draw.Timestamp
const TimestampLayout = "2006-01-02 15:04:05"

// GroupKind tells whether a matched group came from the draw or was formed by hand
type GroupKind string

const (
	Automatic GroupKind = "Automático"
	Manual    GroupKind = "Manual"
)

// Match is one search hit: a student found in a group of a saved draw
type Match struct {
	DrawID      int       `json:"sorteio_id"`
	DrawName    string    `json:"sorteio_nome"`
	Timestamp   string    `json:"data"`
	Kind        GroupKind `json:"tipo_grupo"`
	GroupNumber int       `json:"numero_grupo"` // 1-based
	Student     string    `json:"aluno"`
	Members     Group     `json:"grupo_completo"`
}

// ExportRow is one line of the exported group table
type ExportRow struct {
	Group  string `json:"Grupo"`
	Name   string `json:"Nome"`
	Cohort Cohort `json:"Turma"`
}
