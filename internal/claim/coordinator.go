// Package claim coordinates exclusive ownership of companies in the shared pool.
//
// A claim writes two records: the company's owner and the claimant's lead. Both writes
// happen in one store transaction, and the matching event is published only after that
// transaction commits.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/leadpool/internal/events"
	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/store"
	"github.com/wolfeidau/leadpool/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrAlreadyClaimedByOther = errors.New("company already claimed by another user")
	ErrAlreadyClaimedBySelf  = errors.New("company already claimed by you")
	ErrNotFound              = errors.New("company not found")
	ErrNotOwner              = errors.New("company is not claimed by you")
	ErrTransactionFailed     = errors.New("claim transaction failed")
)

// ClaimRequest asks for a company to be claimed by User. Snapshot is copied into the
// new lead as the claimant saw it; an empty snapshot copies the stored company instead.
type ClaimRequest struct {
	User        models.User
	CompanyID   int64
	CompanyName string
	Snapshot    models.Snapshot
}

// UnclaimRequest asks for User's claim on a company to be released.
type UnclaimRequest struct {
	User        models.User
	CompanyID   int64
	CompanyName string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator executes claims and unclaims against a ClaimStore and publishes the
// outcome of each committed transaction.
type Coordinator struct {
	store     store.ClaimStore
	publisher events.Publisher
	now       func() time.Time
}

// NewCoordinator creates a coordinator. The publisher is usually the process's event bus,
// or a Redis relay when several processes share the pool.
func NewCoordinator(claimStore store.ClaimStore, publisher events.Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     claimStore,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Claim makes req.User the owner of the company and creates their lead, returning the
// new lead id. The claimed event is published once the transaction commits, even if
// ctx is canceled by then.
func (c *Coordinator) Claim(ctx context.Context, req ClaimRequest) (int64, error) {
	start := time.Now()
	m := telemetry.GetMetrics()

	var (
		leadID      int64
		companyName = req.CompanyName
	)

	err := c.store.WithinTx(ctx, func(ctx context.Context, tx store.ClaimTx) error {
		exists, err := tx.LeadExists(ctx, req.User.ID, req.CompanyID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyClaimedBySelf
		}

		// Holds the row lock until commit so concurrent claimants serialize here.
		company, err := tx.LockCompany(ctx, req.CompanyID)
		if err != nil {
			return err
		}
		if company.IsClaimed() {
			if company.IsOwnedBy(req.User.ID) {
				return ErrAlreadyClaimedBySelf
			}
			return ErrAlreadyClaimedByOther
		}
		if companyName == "" {
			companyName = company.Name
		}
		snapshot := req.Snapshot
		if snapshot.IsEmpty() {
			snapshot = models.SnapshotOf(company)
		}

		leadID, err = tx.CreateLead(ctx, &models.Lead{
			OwnerID:   req.User.ID,
			CompanyID: req.CompanyID,
			Name:      companyName,
			Contacts:  snapshot.Contacts,
			DealURLs:  snapshot.DealURLs,
			Phones:    snapshot.Phones,
			Emails:    snapshot.Emails,
		})
		if err != nil {
			return err
		}

		_, err = tx.SetOwner(ctx, req.CompanyID, &req.User.ID)
		return err
	})

	m.ClaimDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("operation", "claim")))

	if err != nil {
		err = classify(err)
		c.recordFailure(ctx, "claim", err)
		log.Debug().
			Err(err).
			Int64("user_id", req.User.ID).
			Int64("company_id", req.CompanyID).
			Msg("Claim rejected")
		return 0, err
	}

	m.ClaimsTotal.Add(ctx, 1)
	log.Info().
		Int64("user_id", req.User.ID).
		Int64("company_id", req.CompanyID).
		Int64("lead_id", leadID).
		Msg("Company claimed")

	c.publisher.Publish(context.WithoutCancel(ctx), events.Event{
		Type:        events.TypeClaimed,
		CompanyID:   req.CompanyID,
		CompanyName: companyName,
		UserID:      req.User.ID,
		Username:    req.User.Username,
		Timestamp:   c.now().UTC(),
	})

	return leadID, nil
}

// Unclaim releases req.User's claim on the company and deletes their lead. Callers that
// do not own the company get ErrNotOwner and ownership is left unchanged.
func (c *Coordinator) Unclaim(ctx context.Context, req UnclaimRequest) error {
	start := time.Now()
	m := telemetry.GetMetrics()

	companyName := req.CompanyName

	err := c.store.WithinTx(ctx, func(ctx context.Context, tx store.ClaimTx) error {
		company, err := tx.LockCompany(ctx, req.CompanyID)
		if err != nil {
			return err
		}
		if !company.IsOwnedBy(req.User.ID) {
			return ErrNotOwner
		}
		if companyName == "" {
			companyName = company.Name
		}

		if _, err := tx.DeleteLead(ctx, req.User.ID, req.CompanyID); err != nil {
			return err
		}

		_, err = tx.SetOwner(ctx, req.CompanyID, nil)
		return err
	})

	m.ClaimDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("operation", "unclaim")))

	if err != nil {
		err = classify(err)
		c.recordFailure(ctx, "unclaim", err)
		log.Debug().
			Err(err).
			Int64("user_id", req.User.ID).
			Int64("company_id", req.CompanyID).
			Msg("Unclaim rejected")
		return err
	}

	m.UnclaimsTotal.Add(ctx, 1)
	log.Info().
		Int64("user_id", req.User.ID).
		Int64("company_id", req.CompanyID).
		Msg("Company unclaimed")

	c.publisher.Publish(context.WithoutCancel(ctx), events.Event{
		Type:        events.TypeUnclaimed,
		CompanyID:   req.CompanyID,
		CompanyName: companyName,
		UserID:      req.User.ID,
		Username:    req.User.Username,
		Timestamp:   c.now().UTC(),
	})

	return nil
}

func (c *Coordinator) recordFailure(ctx context.Context, operation string, err error) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	switch {
	case errors.Is(err, ErrAlreadyClaimedByOther), errors.Is(err, ErrAlreadyClaimedBySelf):
		m.ClaimConflictsTotal.Add(ctx, 1, attrs)
	case errors.Is(err, ErrTransactionFailed):
		m.ClaimErrorsTotal.Add(ctx, 1, attrs)
		log.Error().Err(err).Str("operation", operation).Msg("Claim transaction failed")
	}
}

// classify maps store errors onto the coordinator's error kinds. Anything unrecognised
// is an infrastructure fault and is wrapped in ErrTransactionFailed.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyClaimedByOther),
		errors.Is(err, ErrAlreadyClaimedBySelf),
		errors.Is(err, ErrNotOwner):
		return err
	case errors.Is(err, store.ErrCompanyNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrLeadExists):
		// the unique index caught a same-user race the existence check let through
		return ErrAlreadyClaimedBySelf
	default:
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
}
