package newsletter

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinkSigner(t *testing.T) {
	_, err := NewLinkSigner("", time.Hour)
	assert.Error(t, err)

	s, err := NewLinkSigner("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLinkTTL, s.ttl)
}

func TestLinkSigner_SignVerify(t *testing.T) {
	s, err := NewLinkSigner("secret", time.Hour)
	require.NoError(t, err)

	token, err := s.Sign("user-1", LinkPurposeUnsubscribe)
	require.NoError(t, err)

	id, err := s.Verify(token, LinkPurposeUnsubscribe)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	t.Run("wrong purpose", func(t *testing.T) {
		_, err := s.Verify(token, LinkPurposePreferences)
		assert.ErrorIs(t, err, ErrInvalidLinkToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewLinkSigner("other", time.Hour)
		require.NoError(t, err)
		_, err = other.Verify(token, LinkPurposeUnsubscribe)
		assert.ErrorIs(t, err, ErrInvalidLinkToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Verify("not-a-token", LinkPurposeUnsubscribe)
		assert.ErrorIs(t, err, ErrInvalidLinkToken)
	})

	t.Run("expired", func(t *testing.T) {
		past, err := NewLinkSigner("secret", time.Hour)
		require.NoError(t, err)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

		old, err := past.Sign("user-1", LinkPurposeUnsubscribe)
		require.NoError(t, err)

		_, err = s.Verify(old, LinkPurposeUnsubscribe)
		assert.ErrorIs(t, err, ErrInvalidLinkToken)
	})
}

func TestLinks(t *testing.T) {
	t.Run("business link", func(t *testing.T) {
		l := Links{BaseURL: "https://pnwdeals.example/"}
		assert.Equal(t, "https://pnwdeals.example/business/bean-there", l.Business("bean-there"))
	})

	t.Run("footer without signer", func(t *testing.T) {
		l := Links{BaseURL: "https://pnwdeals.example"}
		prefs, unsub, err := l.Footer("user-1")
		require.NoError(t, err)
		assert.Equal(t, "https://pnwdeals.example/preferences", prefs)
		assert.Equal(t, "https://pnwdeals.example/api/v1/newsletter/unsubscribe", unsub)
	})

	t.Run("footer with signer", func(t *testing.T) {
		signer, err := NewLinkSigner("secret", time.Hour)
		require.NoError(t, err)
		l := Links{BaseURL: "https://pnwdeals.example", Signer: signer}

		prefs, unsub, err := l.Footer("user-1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(prefs, "https://pnwdeals.example/preferences?token="))

		u, err := url.Parse(unsub)
		require.NoError(t, err)
		assert.Equal(t, "/api/v1/newsletter/unsubscribe", u.Path)

		id, err := signer.Verify(u.Query().Get("token"), LinkPurposeUnsubscribe)
		require.NoError(t, err)
		assert.Equal(t, "user-1", id)
	})
}
