package db

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"groupdraw-server-go/models"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 10, 14, 5, 9, 0, time.UTC)
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "grupos_salvos.json"))
	s.Now = fixedClock
	return s
}

func TestFileStore_LoadAll(t *testing.T) {
	t.Run("missing file is an empty collection", func(t *testing.T) {
		s := newTestFileStore(t)

		draws, err := s.LoadAll()

		require.NoError(t, err)
		require.Empty(t, draws)
	})

	t.Run("reads the persisted layout", func(t *testing.T) {
		s := newTestFileStore(t)
		data := `[{"id": 1, "nome": "Manhã", "data": "2025-02-01 08:00:00",
			"grupos_automaticos": [["Ana", "Bruno"]], "grupos_manuais": []}]`
		require.NoError(t, os.WriteFile(s.Path, []byte(data), 0o644))

		draws, err := s.LoadAll()

		require.NoError(t, err)
		require.Equal(t, []models.Draw{{
			ID:        1,
			Name:      "Manhã",
			Timestamp: "2025-02-01 08:00:00",
			Automatic: []models.Group{{"Ana", "Bruno"}},
			Manual:    []models.Group{},
		}}, draws)
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		s := newTestFileStore(t)
		require.NoError(t, os.WriteFile(s.Path, []byte("{not json"), 0o644))

		_, err := s.LoadAll()

		require.Error(t, err)
	})
}

// failWrites makes writes to path fail until the returned func is called.
func failWrites(s *FileStore, path string) (restore func()) {
	s.writeFile = func(p string, data []byte) error {
		if p == path {
			return errors.New("disk full")
		}
		return writeFileAtomic(p, data)
	}
	return func() { s.writeFile = writeFileAtomic }
}

func TestFileStore_SaveFailures(t *testing.T) {
	groups := []models.Group{{"Ana", "Bruno"}}

	t.Run("sequence write failure stores nothing", func(t *testing.T) {
		s := newTestFileStore(t)
		restore := failWrites(s, s.seqPath())

		_, err := s.Save(groups, "Manhã", nil)
		require.Error(t, err)
		draws, err := s.LoadAll()
		require.NoError(t, err)
		require.Empty(t, draws)

		restore()
		id, err := s.Save(groups, "Manhã", nil)
		require.NoError(t, err)
		require.Equal(t, 1, id)
		draws, err = s.LoadAll()
		require.NoError(t, err)
		require.Len(t, draws, 1)
	})

	t.Run("draws write failure skips the id without duplicating", func(t *testing.T) {
		s := newTestFileStore(t)
		restore := failWrites(s, s.Path)

		_, err := s.Save(groups, "Manhã", nil)
		require.Error(t, err)

		restore()
		id, err := s.Save(groups, "Manhã", nil)
		require.NoError(t, err)
		require.Equal(t, 2, id)
		draws, err := s.LoadAll()
		require.NoError(t, err)
		require.Len(t, draws, 1)
		require.Equal(t, 2, draws[0].ID)
	})
}

func TestFileStore_Save(t *testing.T) {
	s := newTestFileStore(t)
	automatic := []models.Group{{"Ana", "Bruno", "Caio"}, {"Dora", "Élio"}}
	manual := []models.Group{{"Fábio", "Gil"}}

	id, err := s.Save(automatic, "Sorteio 1", manual)
	require.NoError(t, err)
	require.Equal(t, 1, id)

	id, err = s.Save(automatic[:1], "Sorteio 2", nil)
	require.NoError(t, err)
	require.Equal(t, 2, id)

	draws, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, draws, 2)
	require.Equal(t, automatic, draws[0].Automatic)
	require.Equal(t, manual, draws[0].Manual)
	require.Equal(t, "2025-03-10 14:05:09", draws[0].Timestamp)
	require.Equal(t, []models.Group{}, draws[1].Manual)

	t.Run("file keeps the wire layout", func(t *testing.T) {
		raw, err := os.ReadFile(s.Path)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"Élio"`)

		var generic []map[string]any
		require.NoError(t, json.Unmarshal(raw, &generic))
		require.Len(t, generic, 2)
		for _, key := range []string{"id", "nome", "data", "grupos_automaticos", "grupos_manuais"} {
			require.Contains(t, generic[1], key)
		}
		require.Equal(t, []any{}, generic[1]["grupos_manuais"])
	})
}

func TestFileStore_Delete(t *testing.T) {
	s := newTestFileStore(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Save([]models.Group{{name}}, name, nil)
		require.NoError(t, err)
	}

	ok, err := s.Delete(2)
	require.NoError(t, err)
	require.True(t, ok)

	draws, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, draws, 2)
	require.Equal(t, 1, draws[0].ID)
	require.Equal(t, 3, draws[1].ID)

	t.Run("unknown id leaves the collection unchanged", func(t *testing.T) {
		ok, err := s.Delete(42)
		require.NoError(t, err)
		require.True(t, ok)

		after, err := s.LoadAll()
		require.NoError(t, err)
		require.Equal(t, draws, after)
	})

	t.Run("ids are not reused after deleting the newest draw", func(t *testing.T) {
		_, err := s.Delete(3)
		require.NoError(t, err)

		id, err := s.Save([]models.Group{{"d"}}, "d", nil)
		require.NoError(t, err)
		require.Equal(t, 4, id)
	})
}

func TestFileStore_Search(t *testing.T) {
	s := newTestFileStore(t)
	_, err := s.Save([]models.Group{{"Maria Silva", "João"}, {"Ana"}}, "Primeiro", []models.Group{{"MARIANA", "Pedro"}})
	require.NoError(t, err)
	_, err = s.Save([]models.Group{{"Pedro", "maria clara"}}, "Segundo", nil)
	require.NoError(t, err)

	matches, err := s.Search("  maria ")
	require.NoError(t, err)
	require.Len(t, matches, 3)

	require.Equal(t, models.Match{
		DrawID:      1,
		DrawName:    "Primeiro",
		Timestamp:   "2025-03-10 14:05:09",
		Kind:        models.Automatic,
		GroupNumber: 1,
		Student:     "Maria Silva",
		Members:     models.Group{"Maria Silva", "João"},
	}, matches[0])
	require.Equal(t, models.Manual, matches[1].Kind)
	require.Equal(t, "MARIANA", matches[1].Student)
	require.Equal(t, 2, matches[2].DrawID)
	require.Equal(t, "maria clara", matches[2].Student)

	none, err := s.Search("zzz")
	require.NoError(t, err)
	require.Empty(t, none)

	blank, err := s.Search("   ")
	require.NoError(t, err)
	require.Empty(t, blank)
}
