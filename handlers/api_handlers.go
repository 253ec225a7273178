package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"groupdraw-server-go/assign"
	"groupdraw-server-go/config"
	"groupdraw-server-go/db"
	"groupdraw-server-go/models"
	"groupdraw-server-go/roster"
)

// RosterCache keeps an uploaded roster across restarts
type RosterCache interface {
	SaveRoster(students []models.Student) error
}

// APIHandler holds the dependencies for API handlers
type APIHandler struct {
	Store       db.DrawStore
	RosterCache RosterCache // optional
	Draw        config.DrawConfig
	Auth        config.AuthConfig
	Now         func() time.Time

	mu     sync.RWMutex
	roster *roster.Roster
}

// NewAPIHandler creates a new APIHandler serving the given roster
func NewAPIHandler(store db.DrawStore, r *roster.Roster, drawCfg config.DrawConfig, authCfg config.AuthConfig) *APIHandler {
	if r == nil {
		r, _ = roster.New(nil)
	}
	return &APIHandler{
		Store:  store,
		Draw:   drawCfg,
		Auth:   authCfg,
		Now:    time.Now,
		roster: r,
	}
}

// Roster returns the active roster
func (h *APIHandler) Roster() *roster.Roster {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.roster
}

// SetRoster replaces the active roster
func (h *APIHandler) SetRoster(r *roster.Roster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roster = r
}

// groupView is a group with cohorts resolved and its classification
type groupView struct {
	Members        []models.Student      `json:"membros"`
	Classification assign.Classification `json:"classificacao"`
	Severity       string                `json:"severidade"`
}

func viewGroups(groups []models.Group, r *roster.Roster) []groupView {
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		members := make([]models.Student, 0, len(g))
		for _, name := range g {
			cohort, _ := r.Cohort(name)
			members = append(members, models.Student{Name: name, Cohort: cohort})
		}
		c := assign.Classify(g, r)
		views = append(views, groupView{Members: members, Classification: c, Severity: c.Severity()})
	}
	return views
}

// --- Draw Handlers ---

type drawRequest struct {
	GroupSize    int            `json:"group_size"`
	Seed         *uint64        `json:"seed"`
	ManualGroups []models.Group `json:"manual_groups"`
}

type drawResponse struct {
	Automatic  []models.Group `json:"grupos_automaticos"`
	Manual     []models.Group `json:"grupos_manuais"`
	Unassigned []string       `json:"nao_alocados"`
	Seed       uint64         `json:"seed"`
	GroupSize  int            `json:"group_size"`
	AutoView   []groupView    `json:"automaticos"`
	ManualView []groupView    `json:"manuais"`
}

// PreviewDraw handles POST /api/draws/preview
func (h *APIHandler) PreviewDraw(c *gin.Context) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	size := req.GroupSize
	if size == 0 {
		size = h.Draw.DefaultSize
	}
	if size < h.Draw.MinSize || size > h.Draw.MaxSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("group_size must be between %d and %d", h.Draw.MinSize, h.Draw.MaxSize)})
		return
	}

	r := h.Roster()
	if err := assign.ValidateManualGroups(r, req.ManualGroups); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	var opts []assign.Option
	if req.Seed != nil {
		opts = append(opts, assign.WithSeed(*req.Seed))
	}
	if h.Draw.Overflow {
		opts = append(opts, assign.WithOverflow())
	}

	result, err := assign.Assign(r.Students(), size, req.ManualGroups, opts...)
	if err != nil {
		logrus.WithError(err).Error("Error in PreviewDraw handler")
		c.JSON(errorStatus(err), gin.H{"error": "Failed to draw groups: " + err.Error()})
		return
	}
	if len(result.Unassigned) > 0 {
		logrus.WithField("unassigned", len(result.Unassigned)).Warn("Draw left returners without a group")
	}

	manual := req.ManualGroups
	if manual == nil {
		manual = []models.Group{}
	}
	c.JSON(http.StatusOK, drawResponse{
		Automatic:  result.Groups,
		Manual:     manual,
		Unassigned: result.Unassigned,
		Seed:       result.Seed,
		GroupSize:  size,
		AutoView:   viewGroups(result.Groups, r),
		ManualView: viewGroups(manual, r),
	})
}

type validateRequest struct {
	Groups []models.Group `json:"grupos"`
}

// ValidateGroups handles POST /api/groups/validate
func (h *APIHandler) ValidateGroups(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewGroups(req.Groups, h.Roster()))
}

type saveRequest struct {
	Name      string         `json:"nome"`
	Automatic []models.Group `json:"grupos_automaticos"`
	Manual    []models.Group `json:"grupos_manuais"`
}

// SaveDraw handles POST /api/draws
func (h *APIHandler) SaveDraw(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.Automatic) == 0 && len(req.Manual) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to save: no groups given"})
		return
	}
	if req.Name == "" {
		req.Name = "Sorteio " + h.Now().Format("02/01/2006 15:04")
	}

	id, err := h.Store.Save(req.Automatic, req.Name, req.Manual)
	if err != nil {
		logrus.WithError(err).Error("Error in SaveDraw handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save draw"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "nome": req.Name})
}

type drawSummary struct {
	models.Draw
	TotalGroups   int `json:"total_grupos"`
	TotalStudents int `json:"total_alunos"`
}

// ListDraws handles GET /api/draws, newest first
func (h *APIHandler) ListDraws(c *gin.Context) {
	draws, err := h.Store.LoadAll()
	if err != nil {
		logrus.WithError(err).Error("Error in ListDraws handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve draws"})
		return
	}

	out := make([]drawSummary, 0, len(draws))
	for i := len(draws) - 1; i >= 0; i-- {
		d := draws[i]
		s := drawSummary{Draw: d, TotalGroups: len(d.Automatic) + len(d.Manual)}
		for _, g := range d.Automatic {
			s.TotalStudents += len(g)
		}
		for _, g := range d.Manual {
			s.TotalStudents += len(g)
		}
		out = append(out, s)
	}
	c.JSON(http.StatusOK, out)
}

// DeleteDraw handles DELETE /api/draws/:id
func (h *APIHandler) DeleteDraw(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Draw ID must be a positive integer"})
		return
	}

	if _, err := h.Store.Delete(id); err != nil {
		logrus.WithError(err).WithField("id", id).Error("Error in DeleteDraw handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete draw"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// Search handles GET /api/search?q=
func (h *APIHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}

	matches, err := h.Store.Search(q)
	if err != nil {
		logrus.WithError(err).Error("Error in Search handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search draws"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(matches), "resultados": matches})
}

// --- Roster Handlers ---

// GetRoster handles GET /api/roster?turma=1&q=ana
func (h *APIHandler) GetRoster(c *gin.Context) {
	var cohorts []models.Cohort
	for _, raw := range c.QueryArray("turma") {
		n, err := strconv.Atoi(raw)
		if err != nil || !models.Cohort(n).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "turma must be 1 or 2"})
			return
		}
		cohorts = append(cohorts, models.Cohort(n))
	}
	students := h.Roster().Filter(cohorts, c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"total": len(students), "alunos": students})
}

// RosterStats handles GET /api/roster/stats
func (h *APIHandler) RosterStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Roster().Stats())
}

// ImportRoster handles POST /api/roster/import
func (h *APIHandler) ImportRoster(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	logrus.WithField("file", header.Filename).Info("Received roster upload")

	r, err := roster.Load(header.Filename, file)
	if err != nil {
		logrus.WithError(err).WithField("file", header.Filename).Warn("Rejected roster upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to import roster: " + err.Error()})
		return
	}

	if h.RosterCache != nil {
		if err := h.RosterCache.SaveRoster(r.Students()); err != nil {
			logrus.WithError(err).Error("Error caching imported roster")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store roster"})
			return
		}
	}
	h.SetRoster(r)

	c.JSON(http.StatusOK, gin.H{
		"message":       "Import successful",
		"importedCount": r.Len(),
		"stats":         r.Stats(),
	})
}

// --- Export Handler ---

// Export handles POST /api/export?format=csv|xlsx
func (h *APIHandler) Export(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	rows := roster.ExportRows(h.Roster(), req.Manual, req.Automatic)

	var (
		write       func() error
		contentType string
		filename    string
	)
	switch format := c.DefaultQuery("format", "csv"); format {
	case "csv":
		contentType, filename = "text/csv; charset=utf-8", "grupos_sorteados.csv"
		write = func() error { return roster.WriteCSV(c.Writer, rows) }
	case "xlsx":
		contentType, filename = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "grupos_sorteados.xlsx"
		write = func() error { return roster.WriteExcel(c.Writer, rows) }
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", format)})
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := write(); err != nil {
		logrus.WithError(err).Error("Error writing export")
		_ = c.Error(err)
	}
}

// --- Ping Handler ---

type pinger interface {
	Ping() error
}

// Ping handles GET /api/ping, checking the store when it supports it
func (h *APIHandler) Ping(c *gin.Context) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(); err != nil {
			logrus.WithError(err).Error("Store health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Store unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pong!"})
}

// errorStatus maps draw errors to HTTP codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, assign.ErrInvalidGroupSize),
		errors.Is(err, assign.ErrEmptyGroup),
		errors.Is(err, assign.ErrGroupTooLarge),
		errors.Is(err, assign.ErrUnknownStudent),
		errors.Is(err, assign.ErrDuplicateStudent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
