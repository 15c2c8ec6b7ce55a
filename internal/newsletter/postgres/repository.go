// Package postgres provides the PostgreSQL implementation of the newsletter
// directory store.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/pnw-deals/internal/domain"
	"github.com/bissquit/pnw-deals/internal/newsletter"
	"github.com/bissquit/pnw-deals/internal/pkg/ctxlog"
)

// Repository implements newsletter.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ActiveSubscribers returns users holding an active, not unsubscribed
// newsletter subscription together with their taxonomy preferences.
func (r *Repository) ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	query := `
		SELECT
			u.user_id,
			u.email,
			ARRAY(
				SELECT uc.category_id FROM user_categories uc
				WHERE uc.user_id = u.user_id
				ORDER BY uc.category_id
			) AS category_ids,
			ARRAY(
				SELECT us.subcategory_id FROM user_subcategories us
				WHERE us.user_id = u.user_id
				ORDER BY us.subcategory_id
			) AS subcategory_ids
		FROM users u
		WHERE EXISTS (
			SELECT 1 FROM subscriptions s
			WHERE s.user_id = u.user_id
			  AND s.plan_type = 'newsletter'
			  AND s.status = 'active'
			  AND s.unsubscribed_at IS NULL
		)
		ORDER BY u.user_id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, &newsletter.DataAccessError{Op: "query subscribers", Err: err}
	}
	defer rows.Close()

	var subscribers []domain.Subscriber
	for rows.Next() {
		var (
			sub   domain.Subscriber
			email *string
		)
		if err := rows.Scan(&sub.ID, &email, &sub.CategoryIDs, &sub.SubcategoryIDs); err != nil {
			return nil, &newsletter.DataAccessError{Op: "scan subscriber", Err: err}
		}
		if email == nil || strings.TrimSpace(*email) == "" {
			return nil, &newsletter.DataAccessError{
				Op:  "scan subscriber",
				Err: fmt.Errorf("%w: user %s has no email", newsletter.ErrMalformedRecord, sub.ID),
			}
		}
		sub.Email = strings.TrimSpace(*email)
		subscribers = append(subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, &newsletter.DataAccessError{Op: "iterate subscribers", Err: err}
	}

	return subscribers, nil
}

// DealsCreatedSince returns deals created at or after since, newest first.
// Deals whose business row is missing are logged and excluded.
func (r *Repository) DealsCreatedSince(ctx context.Context, since time.Time) ([]domain.Deal, error) {
	query := `
		SELECT
			d.id, d.title, COALESCE(d.description, ''), d.discount,
			d.start_date, d.end_date, d.created_at,
			b.id, b.name, b.slug, b.category_id, b.subcategory_id
		FROM deals d
		LEFT JOIN businesses b ON b.id = d.business_id
		WHERE d.created_at >= $1
		ORDER BY d.created_at DESC, d.id
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, &newsletter.DataAccessError{Op: "query deals", Err: err}
	}
	defer rows.Close()

	var (
		deals    []domain.Deal
		orphaned int
	)
	for rows.Next() {
		var (
			deal                        domain.Deal
			bizID, bizName, bizSlug     *string
			bizCategory, bizSubcategory *string
		)
		err := rows.Scan(
			&deal.ID,
			&deal.Title,
			&deal.Description,
			&deal.Discount,
			&deal.StartDate,
			&deal.EndDate,
			&deal.CreatedAt,
			&bizID,
			&bizName,
			&bizSlug,
			&bizCategory,
			&bizSubcategory,
		)
		if err != nil {
			return nil, &newsletter.DataAccessError{Op: "scan deal", Err: err}
		}

		if bizID == nil || bizCategory == nil {
			orphaned++
			ctxlog.FromContext(ctx).Warn("deal has no business, excluding", "deal_id", deal.ID)
			continue
		}

		deal.Business = &domain.Business{
			ID:            *bizID,
			Name:          deref(bizName),
			Slug:          deref(bizSlug),
			CategoryID:    *bizCategory,
			SubcategoryID: bizSubcategory,
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, &newsletter.DataAccessError{Op: "iterate deals", Err: err}
	}

	newsletter.RecordDealsWithoutBusiness(orphaned)
	return deals, nil
}

// Unsubscribe marks every newsletter subscription of the user as
// unsubscribed. Repeated calls succeed.
func (r *Repository) Unsubscribe(ctx context.Context, subscriberID string) error {
	query := `
		WITH updated AS (
			UPDATE subscriptions
			SET unsubscribed_at = NOW(), updated_at = NOW()
			WHERE user_id = $1 AND plan_type = 'newsletter' AND unsubscribed_at IS NULL
			RETURNING id
		)
		SELECT
			(SELECT COUNT(*) FROM updated),
			(SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND plan_type = 'newsletter')
	`
	var updated, total int64
	if err := r.db.QueryRow(ctx, query, subscriberID).Scan(&updated, &total); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if total == 0 {
		return newsletter.ErrSubscriberNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
