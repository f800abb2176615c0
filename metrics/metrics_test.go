package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	// two instances must not collide on registration
	a := New()
	b := New()

	a.QuestionsClosed.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.QuestionsClosed))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.QuestionsClosed))
}

func TestPublishCountsEvents(t *testing.T) {
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, models.Event{Kind: "VoteCast"}))
	require.NoError(t, m.Publish(ctx, models.Event{Kind: "VoteCast"}))
	require.NoError(t, m.Publish(ctx, models.Event{Kind: "MemberJoined"}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerEvents.WithLabelValues("VoteCast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerEvents.WithLabelValues("MemberJoined")))
}

func TestRejectAndAuth(t *testing.T) {
	m := New()

	m.Reject("AlreadyVoted")
	m.Auth("verify", true)
	m.Auth("verify", false)
	m.Auth("verify", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerRejects.WithLabelValues("AlreadyVoted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("verify", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("verify", "failure")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.StreamClients.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "pfm_stream_clients 3")
	assert.Contains(t, string(body), "go_goroutines")
}
