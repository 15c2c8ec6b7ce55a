//go:build integration

package integration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// resetStore empties every directory table and the Mailpit inbox.
func resetStore(t *testing.T) {
	t.Helper()

	_, err := testDB.Exec(context.Background(), `
		TRUNCATE subscriptions, user_subcategories, user_categories, deals,
			businesses, subcategories, categories, users
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)
	require.NoError(t, mailpitClient.DeleteAllMessages())
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func createCategory(t *testing.T, name string) string {
	t.Helper()
	id := newID("cat")
	_, err := testDB.Exec(context.Background(),
		`INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)`, id, name, id)
	require.NoError(t, err)
	return id
}

func createSubcategory(t *testing.T, categoryID, name string) string {
	t.Helper()
	id := newID("sub")
	_, err := testDB.Exec(context.Background(),
		`INSERT INTO subcategories (id, category_id, name, slug) VALUES ($1, $2, $3, $4)`,
		id, categoryID, name, id)
	require.NoError(t, err)
	return id
}

func createBusiness(t *testing.T, name, categoryID string, subcategoryID *string) (id, slug string) {
	t.Helper()
	id = newID("biz")
	slug = id
	_, err := testDB.Exec(context.Background(), `
		INSERT INTO businesses (id, name, slug, category_id, subcategory_id)
		VALUES ($1, $2, $3, $4, $5)`,
		id, name, slug, categoryID, subcategoryID)
	require.NoError(t, err)
	return id, slug
}

type dealSeed struct {
	businessID  *string
	title       string
	description *string
	discount    *string
	age         time.Duration
}

func createDeal(t *testing.T, seed dealSeed) string {
	t.Helper()
	id := newID("deal")
	_, err := testDB.Exec(context.Background(), `
		INSERT INTO deals (id, business_id, title, description, discount, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW() - make_interval(secs => $6))`,
		id, seed.businessID, seed.title, seed.description, seed.discount, seed.age.Seconds())
	require.NoError(t, err)
	return id
}

// createUser inserts a user with the given preferences. email may be nil to
// simulate a malformed record.
func createUser(t *testing.T, email *string, categoryIDs, subcategoryIDs []string) string {
	t.Helper()
	ctx := context.Background()

	id := newID("user")
	_, err := testDB.Exec(ctx, `INSERT INTO users (user_id, email) VALUES ($1, $2)`, id, email)
	require.NoError(t, err)

	for _, c := range categoryIDs {
		_, err := testDB.Exec(ctx, `INSERT INTO user_categories (user_id, category_id) VALUES ($1, $2)`, id, c)
		require.NoError(t, err)
	}
	for _, s := range subcategoryIDs {
		_, err := testDB.Exec(ctx, `INSERT INTO user_subcategories (user_id, subcategory_id) VALUES ($1, $2)`, id, s)
		require.NoError(t, err)
	}
	return id
}

func createSubscription(t *testing.T, userID, planType, status string) string {
	t.Helper()
	stripeID := newID("sub_stripe")
	_, err := testDB.Exec(context.Background(), `
		INSERT INTO subscriptions (user_id, stripe_subscription_id, plan_type, status)
		VALUES ($1, $2, $3, $4)`,
		userID, stripeID, planType, status)
	require.NoError(t, err)
	return stripeID
}

// createSubscriber is a user with an active newsletter subscription.
func createSubscriber(t *testing.T, email string, categoryIDs, subcategoryIDs []string) string {
	t.Helper()
	id := createUser(t, &email, categoryIDs, subcategoryIDs)
	createSubscription(t, id, "newsletter", "active")
	return id
}

// stripeSignature builds a Stripe-Signature header for payload.
func stripeSignature(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func strPtr(s string) *string { return &s }
