package db

import (
	"strings"

	"groupdraw-server-go/models"
)

// DrawStore persists saved draws
type DrawStore interface {
	// Save appends a draw and returns its id
	Save(automatic []models.Group, name string, manual []models.Group) (int, error)
	// LoadAll returns every draw in save order
	LoadAll() ([]models.Draw, error)
	// Delete removes the draw with the given id. Unknown ids are a no-op.
	Delete(id int) (bool, error)
	// Search finds students whose name contains fragment
	Search(fragment string) ([]models.Match, error)
}

// SearchDraws matches fragment case-insensitively against every member of
// every group. Results follow draw order, automatic groups before manual
// ones, then group and member order. A blank fragment matches nothing.
func SearchDraws(draws []models.Draw, fragment string) []models.Match {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	matches := []models.Match{}
	if fragment == "" {
		return matches
	}

	for _, draw := range draws {
		scan := func(groups []models.Group, kind models.GroupKind) {
			for idx, group := range groups {
				for _, student := range group {
					if !strings.Contains(strings.ToLower(student), fragment) {
						continue
					}
					matches = append(matches, models.Match{
						DrawID:      draw.ID,
						DrawName:    draw.Name,
						Timestamp:   draw.Timestamp,
						Kind:        kind,
						GroupNumber: idx + 1,
						Student:     student,
						Members:     append(models.Group{}, group...),
					})
				}
			}
		}
		scan(draw.Automatic, models.Automatic)
		scan(draw.Manual, models.Manual)
	}
	return matches
}

// normalizeGroups keeps empty collections as [] in the persisted JSON
func normalizeGroups(groups []models.Group) []models.Group {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, append(models.Group{}, g...))
	}
	return out
}
