package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"wallpaper-notify/internal/metrics"
	"wallpaper-notify/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeGateway records FCM calls and answers with a scripted status per call
type fakeGateway struct {
	mu       sync.Mutex
	statuses []int
	requests []recordedPush
	server   *httptest.Server
}

type recordedPush struct {
	Path          string
	Authorization string
	Body          map[string]interface{}
}

func newFakeGateway(t *testing.T, statuses ...int) *fakeGateway {
	t.Helper()
	g := &fakeGateway{statuses: statuses}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)

	g.mu.Lock()
	call := len(g.requests)
	g.requests = append(g.requests, recordedPush{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	status := http.StatusOK
	if call < len(g.statuses) {
		status = g.statuses[call]
	}
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		w.Write([]byte(`{"name":"projects/demo/messages/0:1"}`))
		return
	}
	w.Write([]byte(`{"error":{"code":403,"message":"SenderId mismatch","status":"PERMISSION_DENIED"}}`))
}

func (g *fakeGateway) calls() []recordedPush {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]recordedPush(nil), g.requests...)
}

func testWallpaper(senderID, applyTo string) *models.Wallpaper {
	return &models.Wallpaper{
		ID:       "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		PairID:   pairID,
		SenderID: senderID,
		ImageURL: "https://cdn.example.com/w.jpg",
		ApplyTo:  applyTo,
	}
}

func newTestDispatcher(g *fakeGateway, m *metrics.Metrics) *PushDispatcher {
	return NewPushDispatcher(g.server.URL+"/", "demo", g.server.Client(), nil, m)
}

func dig(t *testing.T, v interface{}, path ...string) interface{} {
	t.Helper()
	for _, key := range path {
		obj, ok := v.(map[string]interface{})
		require.True(t, ok, "expected object at %q", key)
		v = obj[key]
	}
	return v
}

func TestDispatch_MessageShape(t *testing.T) {
	g := newFakeGateway(t)
	d := newTestDispatcher(g, newTestMetrics())
	wp := testWallpaper(aliceID, models.ApplyToBoth)
	res := ResolveRecipients(wp, pairUsers())

	results := d.Dispatch(context.Background(), wp, res, "access-123")
	require.Len(t, results, 2)

	calls := g.calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, "/v1/projects/demo/messages:send", c.Path)
		assert.Equal(t, "Bearer access-123", c.Authorization)
	}

	sender := calls[0].Body
	assert.Equal(t, "token-alice", dig(t, sender, "message", "token"))
	assert.Equal(t, map[string]interface{}{
		"type":         "wallpaper_sync",
		"wallpaper_id": wp.ID,
		"image_url":    wp.ImageURL,
		"sender_id":    aliceID,
		"pair_id":      pairID,
		"apply_to":     "both",
		"source_type":  "shared_board",
		"sender_name":  "Ada Lovelace",
	}, dig(t, sender, "message", "data"))
	assert.Equal(t, "high", dig(t, sender, "message", "android", "priority"))
	assert.Equal(t, float64(1), dig(t, sender, "message", "apns", "payload", "aps", "mutable-content"))
	assert.Equal(t, "Wallpaper updated", dig(t, sender, "message", "apns", "payload", "aps", "alert", "title"))
	assert.Equal(t, "Your wallpaper was just applied.", dig(t, sender, "message", "apns", "payload", "aps", "alert", "body"))

	partner := calls[1].Body
	assert.Equal(t, "token-bob", dig(t, partner, "message", "token"))
	assert.Equal(t, "New wallpaper from Ada", dig(t, partner, "message", "apns", "payload", "aps", "alert", "title"))
	assert.Equal(t,
		"Ada has sent you a new wallpaper! It will be applied when your next Shortcut automation runs.",
		dig(t, partner, "message", "apns", "payload", "aps", "alert", "body"))
}

func TestDispatch_SourceTypeKept(t *testing.T) {
	g := newFakeGateway(t)
	d := newTestDispatcher(g, newTestMetrics())
	wp := testWallpaper(aliceID, models.ApplyToPartner)
	wp.SourceType = strPtr("daily_pick")

	d.Dispatch(context.Background(), wp, ResolveRecipients(wp, pairUsers()), "access-123")

	calls := g.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "daily_pick", dig(t, calls[0].Body, "message", "data", "source_type"))
}

func TestDispatch_PartialFailureDoesNotAbort(t *testing.T) {
	g := newFakeGateway(t, http.StatusOK, http.StatusForbidden)
	m := newTestMetrics()
	d := newTestDispatcher(g, m)
	wp := testWallpaper(models.SystemSenderID, models.ApplyToBoth)

	results := d.Dispatch(context.Background(), wp, ResolveRecipients(wp, pairUsers()), "access-123")
	require.Len(t, results, 2)

	assert.Equal(t, aliceID, results[0].UserID)
	assert.True(t, results[0].Success)
	assert.Equal(t, http.StatusOK, results[0].StatusCode)
	assert.JSONEq(t, `{"name":"projects/demo/messages/0:1"}`, string(results[0].Result))
	assert.Empty(t, results[0].Error)

	assert.Equal(t, bobID, results[1].UserID)
	assert.False(t, results[1].Success)
	assert.Equal(t, http.StatusForbidden, results[1].StatusCode)
	assert.Contains(t, string(results[1].Result), "PERMISSION_DENIED")
	assert.Contains(t, results[1].Error, "SenderId mismatch")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(metrics.OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(metrics.OutcomeRejected)))
}

func TestDispatch_TransportErrorRecordedPerRecipient(t *testing.T) {
	g := newFakeGateway(t)
	m := newTestMetrics()
	d := newTestDispatcher(g, m)
	g.server.Close()

	wp := testWallpaper(models.SystemSenderID, models.ApplyToBoth)
	results := d.Dispatch(context.Background(), wp, ResolveRecipients(wp, pairUsers()), "access-123")

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Zero(t, r.StatusCode)
		assert.Contains(t, r.Error, "send request")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pushes.WithLabelValues(metrics.OutcomeError)))
}

func TestDispatch_RateLimited(t *testing.T) {
	g := newFakeGateway(t)
	limiter := rate.NewLimiter(rate.Inf, 1)
	d := NewPushDispatcher(g.server.URL, "demo", g.server.Client(), limiter, newTestMetrics())
	wp := testWallpaper(models.SystemSenderID, models.ApplyToBoth)

	results := d.Dispatch(context.Background(), wp, ResolveRecipients(wp, pairUsers()), "access-123")
	require.Len(t, results, 2)
	assert.Len(t, g.calls(), 2)
}

func TestDispatch_CancelledContext(t *testing.T) {
	g := newFakeGateway(t)
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	limiter.Allow()
	d := NewPushDispatcher(g.server.URL, "demo", g.server.Client(), limiter, newTestMetrics())
	wp := testWallpaper(models.SystemSenderID, models.ApplyToBoth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := d.Dispatch(ctx, wp, ResolveRecipients(wp, pairUsers()), "access-123")
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Contains(t, r.Error, "rate limiter")
	}
	assert.Empty(t, g.calls())
}
