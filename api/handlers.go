package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"template-rules/decision/availability"
	"template-rules/decision/rules"
	"template-rules/decision/template"
	apperrors "template-rules/pkg/errors"
)

// QuoteRequest is the body of a quote call
type QuoteRequest struct {
	Context rules.PricingContext `json:"context"`
	Hours   decimal.Decimal      `json:"hours"`
}

// AvailabilityRequest is the body of an availability call. When lead time
// is omitted it is measured from the server clock.
type AvailabilityRequest struct {
	Date            rules.Date  `json:"date"`
	Time            rules.Clock `json:"time"`
	DurationMinutes int         `json:"duration_minutes,omitempty"`
	LeadTimeHours   *float64    `json:"lead_time_hours,omitempty"`
	IsHoliday       bool        `json:"is_holiday,omitempty"`
	CurrentBookings *int        `json:"current_bookings,omitempty"`
}

// PreviewQuoteRequest prices a template that has not been saved
type PreviewQuoteRequest struct {
	Template *template.ServiceTemplate `json:"template"`
	QuoteRequest
}

// PreviewAvailabilityRequest checks a template that has not been saved
type PreviewAvailabilityRequest struct {
	Template *template.ServiceTemplate `json:"template"`
	Request  AvailabilityRequest       `json:"request"`
}

// ValidationResponse reports template problems
type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

func (s *Server) toRequest(body AvailabilityRequest) availability.Request {
	req := availability.Request{
		Date:            body.Date,
		Time:            body.Time,
		DurationMinutes: body.DurationMinutes,
		IsHoliday:       body.IsHoliday,
		CurrentBookings: body.CurrentBookings,
	}
	if body.LeadTimeHours != nil {
		req.LeadTimeHours = *body.LeadTimeHours
	} else if !body.Date.IsZero() {
		req.LeadTimeHours = availability.LeadTimeHours(s.now(), body.Date, body.Time, s.config.Location)
	}
	return req
}

// =============================================================================
// STORED TEMPLATES
// =============================================================================

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var body QuoteRequest
	if !s.decode(w, r, &body) {
		return
	}

	quote, err := s.evaluator.Quote(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "templateID"), body.Context, body.Hours)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, quote)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var body AvailabilityRequest
	if !s.decode(w, r, &body) {
		return
	}

	verdict, err := s.evaluator.CheckAvailability(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "templateID"), s.toRequest(body))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, verdict)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.evaluator.ListTemplates(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if templates == nil {
		templates = []*template.ServiceTemplate{}
	}
	s.jsonResponse(w, http.StatusOK, templates)
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl template.ServiceTemplate
	if !s.decode(w, r, &tmpl) {
		return
	}

	businessID := chi.URLParam(r, "businessID")
	if tmpl.BusinessID != "" && tmpl.BusinessID != businessID {
		s.jsonError(w, http.StatusBadRequest, "business_id does not match the path")
		return
	}
	tmpl.BusinessID = businessID

	if err := s.evaluator.SaveTemplate(r.Context(), &tmpl); err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, &tmpl)
}

// =============================================================================
// PREVIEW
// =============================================================================

func (s *Server) handlePreviewQuote(w http.ResponseWriter, r *http.Request) {
	var body PreviewQuoteRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Template == nil {
		s.jsonError(w, http.StatusBadRequest, "template is required")
		return
	}

	quote, err := s.evaluator.PreviewQuote(body.Template, body.Context, body.Hours)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, quote)
}

func (s *Server) handlePreviewAvailability(w http.ResponseWriter, r *http.Request) {
	var body PreviewAvailabilityRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Template == nil {
		s.jsonError(w, http.StatusBadRequest, "template is required")
		return
	}

	verdict, err := s.evaluator.PreviewAvailability(body.Template, s.toRequest(body.Request))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, verdict)
}

// =============================================================================
// TEMPLATE VALIDATION AND AUDIT
// =============================================================================

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var tmpl template.ServiceTemplate
	if !s.decode(w, r, &tmpl) {
		return
	}

	if err := tmpl.Validate(); err != nil {
		ee, ok := apperrors.As(err)
		if !ok {
			s.writeError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, ValidationResponse{Valid: false, Problems: ee.Details})
		return
	}
	s.jsonResponse(w, http.StatusOK, ValidationResponse{Valid: true})
}

func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.jsonError(w, http.StatusNotImplemented, "audit log not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			s.jsonError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	records, err := s.audit.ListRecent(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "templateID"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, records)
}
