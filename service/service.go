// Package service wires the pure evaluators to their collaborators: the
// template store, the capacity counter, the memo cache and the audit log.
// The HTTP API and the CLI both go through it so previews and confirmations
// cannot drift apart.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"template-rules/db/clickhouse"
	"template-rules/decision/availability"
	"template-rules/decision/pricing"
	"template-rules/decision/rules"
	"template-rules/decision/template"
)

// TemplateStore loads and saves templates keyed by business.
type TemplateStore interface {
	GetTemplate(ctx context.Context, businessID, templateID string) (*template.ServiceTemplate, error)
	ListTemplates(ctx context.Context, businessID string) ([]*template.ServiceTemplate, error)
	SaveTemplate(ctx context.Context, tmpl *template.ServiceTemplate) error
}

// CapacityCounter reports how many bookings overlap a buffered window.
type CapacityCounter interface {
	CountBookings(ctx context.Context, templateID string, window availability.Window) (int, error)
}

// Memo caches evaluation results by key.
type Memo interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// AuditLog records every evaluation served from a stored template,
// including repeats answered by the memo.
type AuditLog interface {
	RecordEvaluation(ctx context.Context, rec *clickhouse.EvaluationRecord) error
}

// Service evaluates stored and previewed templates.
type Service struct {
	store        TemplateStore
	pricing      *pricing.Engine
	availability *availability.Engine
	capacity     CapacityCounter
	memo         Memo
	audit        AuditLog
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a service around the two evaluators
func NewService(store TemplateStore, pricingEngine *pricing.Engine, availabilityEngine *availability.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		pricing:      pricingEngine,
		availability: availabilityEngine,
		logger:       logger,
		now:          time.Now,
	}
}

// WithCapacity adds a booking counter for the capacity check
func (s *Service) WithCapacity(counter CapacityCounter) *Service {
	s.capacity = counter
	return s
}

// WithMemo adds an evaluation cache
func (s *Service) WithMemo(memo Memo) *Service {
	s.memo = memo
	return s
}

// WithAudit adds an evaluation audit log
func (s *Service) WithAudit(audit AuditLog) *Service {
	s.audit = audit
	return s
}

// =============================================================================
// STORED TEMPLATES
// =============================================================================

type quoteInput struct {
	Context rules.PricingContext `json:"context"`
	Hours   decimal.Decimal      `json:"hours"`
}

// Quote prices a stored template.
func (s *Service) Quote(ctx context.Context, businessID, templateID string, pctx rules.PricingContext, hours decimal.Decimal) (*pricing.Quote, error) {
	tmpl, err := s.store.GetTemplate(ctx, businessID, templateID)
	if err != nil {
		return nil, err
	}

	input := quoteInput{Context: pctx, Hours: hours}
	hash, err := inputHash(input)
	if err != nil {
		return nil, err
	}
	key := memoKey("quote", tmpl, hash)

	result := &pricing.Quote{}
	cached := s.lookup(ctx, key, result)
	if !cached {
		if result, err = s.pricing.Evaluate(tmpl, pctx, hours); err != nil {
			return nil, err
		}
		s.remember(ctx, key, result)
	}

	s.record(ctx, &clickhouse.EvaluationRecord{
		Kind:            clickhouse.KindQuote,
		BusinessID:      tmpl.BusinessID,
		TemplateID:      tmpl.ID,
		TemplateVersion: tmpl.UpdatedAt,
		InputHash:       hash,
		Total:           result.Total,
		Cached:          cached,
	})

	s.logger.Debug("quote evaluated",
		zap.String("template_id", tmpl.ID),
		zap.String("total", result.Total.String()),
		zap.Int("adjustments", len(result.Adjustments)),
		zap.Bool("cached", cached),
	)
	return result, nil
}

// CheckAvailability decides whether a stored template can be booked. When a
// capacity counter is configured and the request carries no count, the
// counter is consulted for the buffered window first.
func (s *Service) CheckAvailability(ctx context.Context, businessID, templateID string, req availability.Request) (*availability.Verdict, error) {
	tmpl, err := s.store.GetTemplate(ctx, businessID, templateID)
	if err != nil {
		return nil, err
	}

	if s.capacity != nil && req.CurrentBookings == nil {
		window, err := s.availability.WindowFor(tmpl, req)
		if err != nil {
			return nil, err
		}
		count, err := s.capacity.CountBookings(ctx, tmpl.ID, window)
		if err != nil {
			return nil, fmt.Errorf("failed to count bookings: %w", err)
		}
		req.CurrentBookings = &count
	}

	hash, err := inputHash(req)
	if err != nil {
		return nil, err
	}
	key := memoKey("availability", tmpl, hash)

	result := &availability.Verdict{}
	cached := s.lookup(ctx, key, result)
	if !cached {
		if result, err = s.availability.Check(tmpl, req); err != nil {
			return nil, err
		}
		s.remember(ctx, key, result)
	}

	s.record(ctx, &clickhouse.EvaluationRecord{
		Kind:             clickhouse.KindAvailability,
		BusinessID:       tmpl.BusinessID,
		TemplateID:       tmpl.ID,
		TemplateVersion:  tmpl.UpdatedAt,
		InputHash:        hash,
		IsAvailable:      result.IsAvailable,
		RequiresApproval: result.RequiresApproval,
		Reason:           result.Reason,
		Cached:           cached,
	})

	s.logger.Debug("availability evaluated",
		zap.String("template_id", tmpl.ID),
		zap.Bool("available", result.IsAvailable),
		zap.Bool("requires_approval", result.RequiresApproval),
		zap.String("reason", result.Reason),
		zap.Bool("cached", cached),
	)
	return result, nil
}

// SaveTemplate validates a template, assigns missing ids and stores it.
func (s *Service) SaveTemplate(ctx context.Context, tmpl *template.ServiceTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	for i := range tmpl.PricingRules {
		if tmpl.PricingRules[i].ID == "" {
			tmpl.PricingRules[i].ID = uuid.NewString()
		}
	}
	for i := range tmpl.SchedulingRules {
		if tmpl.SchedulingRules[i].ID == "" {
			tmpl.SchedulingRules[i].ID = uuid.NewString()
		}
	}
	if err := tmpl.Validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	if err := s.store.SaveTemplate(ctx, tmpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	s.logger.Info("template saved",
		zap.String("template_id", tmpl.ID),
		zap.String("business_id", tmpl.BusinessID),
	)
	return nil
}

// ListTemplates returns a business's templates.
func (s *Service) ListTemplates(ctx context.Context, businessID string) ([]*template.ServiceTemplate, error) {
	return s.store.ListTemplates(ctx, businessID)
}

// =============================================================================
// PREVIEW
// =============================================================================

// PreviewQuote prices an unsaved template with the same engine as Quote.
func (s *Service) PreviewQuote(tmpl *template.ServiceTemplate, pctx rules.PricingContext, hours decimal.Decimal) (*pricing.Quote, error) {
	return s.pricing.Evaluate(tmpl, pctx, hours)
}

// PreviewAvailability checks an unsaved template with the same engine as CheckAvailability.
func (s *Service) PreviewAvailability(tmpl *template.ServiceTemplate, req availability.Request) (*availability.Verdict, error) {
	return s.availability.Check(tmpl, req)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.memo == nil {
		return false
	}
	found, err := s.memo.GetJSON(ctx, key, dest)
	if err != nil {
		s.logger.Warn("memo lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return found
}

func (s *Service) remember(ctx context.Context, key string, value interface{}) {
	if s.memo == nil {
		return
	}
	if err := s.memo.SetJSON(ctx, key, value); err != nil {
		s.logger.Warn("memo store failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, rec *clickhouse.EvaluationRecord) {
	if s.audit == nil {
		return
	}
	rec.ID = uuid.New()
	rec.EvaluatedAt = s.now().UTC()
	if err := s.audit.RecordEvaluation(ctx, rec); err != nil {
		s.logger.Warn("audit record failed",
			zap.String("template_id", rec.TemplateID),
			zap.String("kind", string(rec.Kind)),
			zap.Error(err),
		)
	}
}

// memoKey identifies an evaluation by template version and input.
func memoKey(kind string, tmpl *template.ServiceTemplate, hash string) string {
	return fmt.Sprintf("%s:%s:%d:%s", kind, tmpl.ID, tmpl.UpdatedAt.UnixNano(), hash)
}

func inputHash(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode evaluation input: %w", err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
