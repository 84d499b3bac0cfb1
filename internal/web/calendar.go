package web

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fixcal/internal/apperr"
	"fixcal/internal/ics"
	"fixcal/internal/model"
)

const (
	calendarContentType = "text/calendar; charset=utf-8"

	// feedRefreshInterval is advertised to subscribing clients.
	feedRefreshInterval = 6 * time.Hour
)

type errorResponse struct {
	Error *apperr.Error `json:"error"`
}

// handleCalendar serves one team's feed. The optional metadata segment
// enables placeholders; an undecodable one is ignored.
func (s *Server) handleCalendar(c *gin.Context) {
	defer func() { s.deps.Metrics.CalendarRequest(c.Writer.Status()) }()

	centreID, teamID := c.Param("centreID"), c.Param("teamId")
	logger := s.logger.With(
		zap.String("centre_id", centreID),
		zap.String("team_id", teamID),
		zap.String("request_id", requestIDFrom(c)))

	details, err := s.deps.Teams.Team(c.Request.Context(), centreID, teamID)
	if err != nil {
		logger.Warn("team lookup failed", zap.Error(err))
		writeError(c, err)
		return
	}

	meta := s.decodeMetadata(c.Param("metadata"), logger)
	events := s.deps.Engine.Reconcile(details, meta)

	w := ics.NewWriter(ics.CalendarInfo{
		Name:            details.CalendarName(),
		Source:          requestURL(c.Request),
		Timezone:        s.timezoneName(meta),
		RefreshInterval: feedRefreshInterval,
	}, s.deps.Clock.Now(), logger)
	_, failures := w.AppendAll(events)

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		logger.Error("calendar serialization failed", zap.Error(err))
		writeError(c, apperr.WrapAs(apperr.ErrInternal, err, ""))
		return
	}

	fixtures, placeholders := countKinds(events)
	s.deps.Metrics.Events(fixtures, placeholders)
	s.deps.Metrics.SerializeFailures(len(failures))

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, calendarContentType, buf.Bytes())
}

func (s *Server) decodeMetadata(raw string, logger *zap.Logger) *model.Metadata {
	if raw == "" {
		return nil
	}
	meta, err := s.deps.Codec.Decode(raw)
	if err != nil {
		logger.Warn("ignoring undecodable calendar metadata", zap.Error(err))
		return nil
	}
	return meta
}

// timezoneName is the metadata zone when present, otherwise the configured
// default.
func (s *Server) timezoneName(meta *model.Metadata) string {
	if meta != nil && meta.Timezone != nil {
		return meta.Timezone.String()
	}
	return s.cfg.Timezone
}

func countKinds(events []model.ResolvedEvent) (fixtures, placeholders int) {
	for _, ev := range events {
		if ev.Placeholder {
			placeholders++
		} else {
			fixtures++
		}
	}
	return fixtures, placeholders
}

// requestURL reconstructs the absolute URL the client subscribed to.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeError(c *gin.Context, err error) {
	appErr := apperr.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.JSON(appErr.Status, errorResponse{Error: appErr})
}
