package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/spk-service/internal/domain"
	"github.com/tbourn/spk-service/internal/spknum"
)

// Verifier is the subset of VerificationService used by OrderService.
type Verifier interface {
	Verify(ctx context.Context, number string, now time.Time) (*Verification, error)
}

// OrderInput is the caller-supplied part of a new order.
type OrderInput struct {
	SPK      string
	Customer string
	Notes    string
}

// FormatAudit summarizes which persisted SPKs do not match the configured width.
type FormatAudit struct {
	Width int
	Total int64
	// Invalid holds up to MaxAuditSamples non-conforming SPKs.
	Invalid      []string
	InvalidCount int64
}

// MaxAuditSamples caps FormatAudit.Invalid.
const MaxAuditSamples = 100

// OrderService is the boundary that turns a reserved SPK into a durable order.
type OrderService struct {
	Orders       OrderRepo
	Verifier     Verifier
	Reservations ReservationStore
	Format       spknum.Format

	CustomerMaxLen int
	NotesMaxLen    int
}

// NewOrderService constructs an OrderService with default field limits.
func NewOrderService(o OrderRepo, v Verifier, r ReservationStore, f spknum.Format) *OrderService {
	return &OrderService{
		Orders:         o,
		Verifier:       v,
		Reservations:   r,
		Format:         f,
		CustomerMaxLen: 255,
		NotesMaxLen:    2000,
	}
}

// Create persists an order for in.SPK. The SPK must be currently reserved;
// once the order lands the reservation is released.
func (s *OrderService) Create(ctx context.Context, in OrderInput, now time.Time) (*domain.Order, error) {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("spk.number", in.SPK)),
	)
	defer span.End()

	customer := normalizeText(in.Customer)
	if customer == "" {
		return nil, fmt.Errorf("%w: customer is required", ErrInvalidOrder)
	}
	if s.CustomerMaxLen > 0 && utf8.RuneCountInString(customer) > s.CustomerMaxLen {
		return nil, fmt.Errorf("%w: customer longer than %d characters", ErrInvalidOrder, s.CustomerMaxLen)
	}
	notes := norm.NFC.String(strings.TrimSpace(in.Notes))
	if s.NotesMaxLen > 0 && utf8.RuneCountInString(notes) > s.NotesMaxLen {
		return nil, fmt.Errorf("%w: notes longer than %d characters", ErrInvalidOrder, s.NotesMaxLen)
	}

	v, err := s.Verifier.Verify(ctx, in.SPK, now)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		switch v.Reason {
		case ReasonMalformed:
			return nil, fmt.Errorf("%w: %s", ErrMalformed, in.SPK)
		case ReasonAlreadyUsed:
			return nil, ErrSPKAlreadyUsed
		default:
			return nil, ErrSPKNotReserved
		}
	}

	o := &domain.Order{
		ID:        uuid.NewString(),
		SPK:       in.SPK,
		Customer:  customer,
		Notes:     notes,
		CreatedAt: now.UTC(),
	}
	if err := s.Orders.Create(ctx, o); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, ErrSPKAlreadyUsed
		}
		span.RecordError(err)
		return nil, err
	}

	// The unique index on orders.spk now guards the number; the reservation
	// only has to disappear eventually.
	if s.Reservations != nil {
		if err := s.Reservations.Release(context.WithoutCancel(ctx), in.SPK); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("spk", in.SPK).Msg("reservation release after order failed")
		}
	}
	return o, nil
}

// AuditFormats scans every persisted order and reports SPKs that do not
// conform to the configured format.
func (s *OrderService) AuditFormats(ctx context.Context) (*FormatAudit, error) {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "AuditFormats")
	defer span.End()

	out := &FormatAudit{Width: s.Format.Width}
	err := s.Orders.EachBatch(ctx, 500, func(batch []domain.Order) error {
		for _, o := range batch {
			out.Total++
			if s.Format.Valid(o.SPK) {
				continue
			}
			out.InvalidCount++
			if len(out.Invalid) < MaxAuditSamples {
				out.Invalid = append(out.Invalid, o.SPK)
			}
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeText applies NFC, trims, and collapses internal whitespace.
func normalizeText(s string) string {
	s = norm.NFC.String(s)
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
