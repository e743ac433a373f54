package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptnegotiate/libs/db"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/negotiation"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/outbox"
)

// ConversationRepository persists appointments and messages owned by a
// conversation. Appointment writes are guarded on identity plus origin status
// so concurrent transitions resolve to exactly one winner.
type ConversationRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewConversationRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ConversationRepository {
	return &ConversationRepository{pool: pool, outboxRepo: outboxRepo}
}

const appointmentColumns = `
	id::text, conversation_id::text, customer_id::text, business_id::text,
	service, customer_name, customer_phone, status,
	preferred_date, preferred_time, suggested_date, suggested_time,
	was_rescheduled, created_at, updated_at`

func (r *ConversationRepository) GetAppointment(ctx context.Context, conversationID, appointmentID string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND conversation_id = $2
	`, appointmentID, conversationID)
	return scanAppointment(row)
}

// ApplyTransition replaces the appointment in one conditional write and records
// the notification intents in the same transaction. The WHERE clause re-checks
// identity, ownership and origin status at write time; zero rows matched means
// a concurrent writer got there first (or the row is gone), and the outcome is
// decided by a post-read:
//
//   - current row already equals the desired state -> logical success, and the
//     intents are NOT recorded (the winning writer already owed them)
//   - row absent -> ErrNotFound
//   - anything else -> ErrConflict
func (r *ConversationRepository) ApplyTransition(ctx context.Context, prior, next model.Appointment, intents []outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", negotiation.ErrWriteFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var suggestedDate, suggestedTime *string
	if next.Suggested != nil {
		suggestedDate = &next.Suggested.Date
		suggestedTime = &next.Suggested.Time
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $1,
			preferred_date = $2,
			preferred_time = $3,
			suggested_date = $4,
			suggested_time = $5,
			was_rescheduled = $6,
			updated_at = $7
		WHERE id = $8
			AND conversation_id = $9
			AND customer_id = $10
			AND status = $11
	`, next.Status, next.PreferredDate, next.PreferredTime,
		suggestedDate, suggestedTime, next.WasRescheduled, next.UpdatedAt,
		prior.ID, prior.ConversationID, prior.CustomerID, prior.Status)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", negotiation.ErrWriteFailed, err)
	}

	if tag.RowsAffected() == 0 {
		// Guard failed at write time; decide not-found vs conflict vs no-op
		// from the row as it stands now.
		return r.reconcile(ctx, prior, next)
	}

	for _, evt := range intents {
		if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
			return model.Appointment{}, fmt.Errorf("%w: %v", negotiation.ErrWriteFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", negotiation.ErrWriteFailed, err)
	}
	return next, nil
}

func (r *ConversationRepository) reconcile(ctx context.Context, prior, next model.Appointment) (model.Appointment, error) {
	current, err := r.GetAppointment(ctx, prior.ConversationID, prior.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.CustomerID == prior.CustomerID && SameObservableState(current, next) {
		return current, nil
	}
	return model.Appointment{}, fmt.Errorf("%w: appointment changed concurrently", negotiation.ErrConflict)
}

// SameObservableState reports whether two appointment snapshots agree on every
// field a transition can change.
func SameObservableState(a, b model.Appointment) bool {
	if a.Status != b.Status ||
		a.PreferredDate != b.PreferredDate ||
		a.PreferredTime != b.PreferredTime ||
		a.WasRescheduled != b.WasRescheduled {
		return false
	}
	if (a.Suggested == nil) != (b.Suggested == nil) {
		return false
	}
	if a.Suggested != nil && *a.Suggested != *b.Suggested {
		return false
	}
	return true
}

// AppendMessage adds one entry to the conversation's message log.
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg model.Message) error {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, is_system)
		VALUES ($1, $2, $3, $4, $5)
	`, id, msg.ConversationID, msg.SenderID, msg.Body, msg.System)
	return err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var suggestedDate, suggestedTime *string
	err := row.Scan(
		&appt.ID,
		&appt.ConversationID,
		&appt.CustomerID,
		&appt.BusinessID,
		&appt.Service,
		&appt.CustomerName,
		&appt.CustomerPhone,
		&appt.Status,
		&appt.PreferredDate,
		&appt.PreferredTime,
		&suggestedDate,
		&suggestedTime,
		&appt.WasRescheduled,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, negotiation.ErrNotFound
		}
		return model.Appointment{}, err
	}
	if suggestedDate != nil && suggestedTime != nil {
		appt.Suggested = &model.SuggestedTime{Date: *suggestedDate, Time: *suggestedTime}
	}
	return appt, nil
}

var _ negotiation.Store = (*ConversationRepository)(nil)
