package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/helmet-cv/server/middleware"
	"github.com/san-kum/helmet-cv/server/models"
	"github.com/san-kum/helmet-cv/server/report"
	"github.com/san-kum/helmet-cv/server/session"
	"go.uber.org/zap"
)

type ReportHandler struct {
	logger *zap.Logger
	now    func() time.Time
}

type ReportView struct {
	Rows   []models.RunSummary `json:"rows"`
	Totals report.Totals       `json:"totals"`
}

func NewReportHandler(logger *zap.Logger) *ReportHandler {
	return &ReportHandler{logger: logger, now: time.Now}
}

func (h *ReportHandler) GetReport(c *gin.Context) {
	start := time.Now()
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}

	respond(c, http.StatusOK, ReportView{
		Rows:   sess.Report.All(),
		Totals: sess.Report.Totals(),
	}, start)
}

func (h *ReportHandler) ClearReport(c *gin.Context) {
	start := time.Now()
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}

	cleared := sess.Report.Len()
	sess.Report.Clear()
	sess.Hub.Publish(session.Event{Type: session.EventStatus, Data: "History cleared"})
	h.logger.Info("Report cleared", zap.String("session_id", sess.ID), zap.Int("rows", cleared))

	respond(c, http.StatusOK, gin.H{"cleared": cleared}, start)
}

// ExportReport streams the session report as a CSV attachment. An empty
// report still yields the header row.
func (h *ReportHandler) ExportReport(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		respondError(c, http.StatusInternalServerError, "NO_SESSION", "Session not available", nil)
		return
	}

	filename := report.ExportFilename(h.now())
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	if err := report.WriteCSV(c.Writer, sess.Report.All()); err != nil {
		h.logger.Error("Failed to write report export", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
