package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/require"

	"groupdraw-server-go/config"
	"groupdraw-server-go/db"
	"groupdraw-server-go/models"
	"groupdraw-server-go/roster"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*gin.Engine, *APIHandler) {
	t.Helper()
	return newTestServerWithAuth(t, config.AuthConfig{Username: "pharmabio", Password: "segredo", Secret: "test-secret"})
}

func newTestServerWithAuth(t *testing.T, auth config.AuthConfig) (*gin.Engine, *APIHandler) {
	t.Helper()
	r, err := roster.New([]models.Student{
		{Name: "Ana", Cohort: models.Newcomer},
		{Name: "Beto", Cohort: models.Newcomer},
		{Name: "Caio", Cohort: models.Newcomer},
		{Name: "Dora", Cohort: models.Returner},
		{Name: "Edu", Cohort: models.Returner},
		{Name: "Fabi", Cohort: models.Returner},
		{Name: "Gil", Cohort: models.Returner},
		{Name: "Hugo", Cohort: models.Returner},
	})
	require.NoError(t, err)

	store := db.NewFileStore(filepath.Join(t.TempDir(), "grupos_salvos.json"))
	h := NewAPIHandler(store, r,
		config.DrawConfig{DefaultSize: 4, MinSize: 2, MaxSize: 6},
		auth,
	)
	return NewRouter(h, nil), h
}

func do(t *testing.T, router http.Handler, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, router http.Handler) []*http.Cookie {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/login", gin.H{"username": "pharmabio", "password": "segredo"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

// signedSession builds a session cookie the way the cookie store would,
// signed with secret.
func signedSession(t *testing.T, secret, user string) *http.Cookie {
	t.Helper()
	values := map[interface{}]interface{}{sessionUserKey: user}
	encoded, err := securecookie.EncodeMulti(SessionCookieName, values, securecookie.CodecsFromPairs([]byte(secret))...)
	require.NoError(t, err)
	return &http.Cookie{Name: SessionCookieName, Value: encoded}
}

func TestAuth_SignedCookies(t *testing.T) {
	t.Run("cookie signed with the server secret is accepted", func(t *testing.T) {
		router, _ := newTestServer(t)
		rec := do(t, router, http.MethodGet, "/api/draws", nil, []*http.Cookie{signedSession(t, "test-secret", "pharmabio")})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("cookie signed with the sample secret is rejected", func(t *testing.T) {
		router, _ := newTestServer(t)
		cookies := []*http.Cookie{signedSession(t, config.PlaceholderSecret, "attacker")}

		rec := do(t, router, http.MethodGet, "/api/draws", nil, cookies)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, router, http.MethodGet, "/api/me", nil, cookies)
		require.Contains(t, rec.Body.String(), `"authenticated":false`)
	})

	t.Run("no password refuses even a validly signed cookie", func(t *testing.T) {
		router, h := newTestServerWithAuth(t, config.AuthConfig{Username: "admin", Secret: "test-secret"})
		_, err := h.Store.Save([]models.Group{{"Ana", "Dora"}}, "Manhã", nil)
		require.NoError(t, err)
		cookies := []*http.Cookie{signedSession(t, "test-secret", "attacker")}

		rec := do(t, router, http.MethodDelete, "/api/draws/1", nil, cookies)
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, router, http.MethodPost, "/api/draws", gin.H{"grupos_automaticos": [][]string{{"Ana", "Beto"}}}, cookies)
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, router, http.MethodGet, "/api/me", nil, cookies)
		require.Contains(t, rec.Body.String(), `"authenticated":false`)

		draws, err := h.Store.LoadAll()
		require.NoError(t, err)
		require.Len(t, draws, 1)
	})

	t.Run("empty secret still signs sessions", func(t *testing.T) {
		router, _ := newTestServerWithAuth(t, config.AuthConfig{Username: "pharmabio", Password: "segredo"})
		cookies := login(t, router)
		rec := do(t, router, http.MethodGet, "/api/draws", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuth(t *testing.T) {
	router, _ := newTestServer(t)

	t.Run("ping is public and tagged with a request id", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/ping", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, rec.Header().Get(requestIDHeader))
	})

	t.Run("protected routes need a session", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/draws", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/login", gin.H{"username": "pharmabio", "password": "x"}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("session unlocks protected routes", func(t *testing.T) {
		cookies := login(t, router)

		rec := do(t, router, http.MethodGet, "/api/me", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"authenticated":true`)

		rec = do(t, router, http.MethodGet, "/api/draws", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestPreviewDraw(t *testing.T) {
	router, _ := newTestServer(t)
	cookies := login(t, router)

	t.Run("draws every student not in a manual group", func(t *testing.T) {
		body := gin.H{"group_size": 3, "seed": 21, "manual_groups": [][]string{{"Ana", "Dora"}}}
		rec := do(t, router, http.MethodPost, "/api/draws/preview", body, cookies)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp drawResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, uint64(21), resp.Seed)
		require.Equal(t, []models.Group{{"Ana", "Dora"}}, resp.Manual)

		placed := map[string]bool{}
		for _, g := range resp.Automatic {
			for _, name := range g {
				require.False(t, placed[name])
				placed[name] = true
			}
		}
		for _, name := range resp.Unassigned {
			placed[name] = true
		}
		require.Len(t, placed, 6)
		require.False(t, placed["Ana"])
		require.False(t, placed["Dora"])
		for _, v := range resp.AutoView {
			require.Equal(t, "ok", v.Severity)
		}

		again := do(t, router, http.MethodPost, "/api/draws/preview", body, cookies)
		var resp2 drawResponse
		require.NoError(t, json.Unmarshal(again.Body.Bytes(), &resp2))
		require.Equal(t, resp.Automatic, resp2.Automatic)
	})

	t.Run("group size out of range", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/draws/preview", gin.H{"group_size": 9}, cookies)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("manual group with unknown student", func(t *testing.T) {
		body := gin.H{"manual_groups": [][]string{{"Zeca"}}}
		rec := do(t, router, http.MethodPost, "/api/draws/preview", body, cookies)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "Zeca")
	})
}

func TestValidateGroups(t *testing.T) {
	router, _ := newTestServer(t)
	cookies := login(t, router)

	body := gin.H{"grupos": [][]string{{"Ana", "Dora"}, {"Dora", "Edu"}, {"Gil"}, {"Beto"}}}
	rec := do(t, router, http.MethodPost, "/api/groups/validate", body, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []groupView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 4)
	require.Equal(t, "valid", string(views[0].Classification))
	require.Equal(t, "missing_newcomer", string(views[1].Classification))
	require.Equal(t, "lone_returner", string(views[2].Classification))
	require.Equal(t, "lone_newcomer", string(views[3].Classification))
	require.Equal(t, models.Returner, views[0].Members[1].Cohort)
}

func TestDrawLifecycle(t *testing.T) {
	router, _ := newTestServer(t)
	cookies := login(t, router)

	save := gin.H{
		"nome":               "Manhã",
		"grupos_automaticos": [][]string{{"Ana", "Dora", "Edu"}, {"Beto", "Fabi"}},
		"grupos_manuais":     [][]string{{"Caio", "Gil", "Hugo"}},
	}
	rec := do(t, router, http.MethodPost, "/api/draws", save, cookies)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"id":1`)

	rec = do(t, router, http.MethodPost, "/api/draws", gin.H{"grupos_automaticos": [][]string{{"Ana", "Beto"}}}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":2`)

	t.Run("list newest first with totals", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/draws", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)

		var list []drawSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 2)
		require.Equal(t, 2, list[0].ID)
		require.True(t, strings.HasPrefix(list[0].Name, "Sorteio "))
		require.Equal(t, 3, list[1].TotalGroups)
		require.Equal(t, 8, list[1].TotalStudents)
	})

	t.Run("search is public", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/search?q=ANA", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Total   int            `json:"total"`
			Results []models.Match `json:"resultados"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 2, resp.Total)
		require.Equal(t, 1, resp.Results[0].DrawID)
		require.Equal(t, models.Group{"Ana", "Dora", "Edu"}, resp.Results[0].Members)

		rec = do(t, router, http.MethodGet, "/api/search", nil, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := do(t, router, http.MethodDelete, "/api/draws/1", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, router, http.MethodDelete, "/api/draws/77", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(t, router, http.MethodDelete, "/api/draws/abc", nil, cookies)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, router, http.MethodGet, "/api/draws", nil, cookies)
		var list []drawSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 1)
		require.Equal(t, 2, list[0].ID)
	})

	t.Run("empty save is rejected", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/draws", gin.H{"nome": "x"}, cookies)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestImportRoster(t *testing.T) {
	router, h := newTestServer(t)
	cookies := login(t, router)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "tarde.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Nome;Turma\nJoana;1\nKleber;2\nLia;2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/roster/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 3, h.Roster().Len())

	rec = do(t, router, http.MethodGet, "/api/roster/stats", nil, nil)
	require.JSONEq(t, `{"total":3,"calouros":1,"veteranos":2}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/roster?turma=2&q=lia", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"total":1,"alunos":[{"nome":"Lia","turma":2}]}`, rec.Body.String())
}

func TestExport(t *testing.T) {
	router, _ := newTestServer(t)
	cookies := login(t, router)

	body := gin.H{
		"grupos_automaticos": [][]string{{"Ana", "Dora"}},
		"grupos_manuais":     [][]string{{"Beto", "Edu"}},
	}
	rec := do(t, router, http.MethodPost, "/api/export?format=csv", body, cookies)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "grupos_sorteados.csv")
	require.Equal(t, "Grupo,Nome,Turma\nManual 1,Beto,1\nManual 1,Edu,2\nGrupo 1,Ana,1\nGrupo 1,Dora,2\n", rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/export?format=pdf", body, cookies)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
