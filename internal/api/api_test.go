package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"rating-notifier/internal/common/auth"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockHandleStore struct {
	CreateFunc         func(ctx context.Context, email, handle string) (*models.HandleRecord, error)
	ResetToUnknownFunc func(ctx context.Context, id, handle string) error
	GetByEmailFunc     func(ctx context.Context, email string) (*models.HandleRecord, error)
	GetByHandleFunc    func(ctx context.Context, handle string) ([]models.HandleRecord, error)
	GetByStateFunc     func(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error)
	CountValidFunc     func(ctx context.Context) (int, error)

	created [][2]string
	resets  [][2]string
}

func (m *MockHandleStore) Create(ctx context.Context, email, handle string) (*models.HandleRecord, error) {
	m.created = append(m.created, [2]string{email, handle})
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, email, handle)
	}
	return &models.HandleRecord{ID: "new-id", Email: email, Handle: handle, State: models.HandleStateUnknown}, nil
}

func (m *MockHandleStore) ResetToUnknown(ctx context.Context, id, handle string) error {
	m.resets = append(m.resets, [2]string{id, handle})
	if m.ResetToUnknownFunc != nil {
		return m.ResetToUnknownFunc(ctx, id, handle)
	}
	return nil
}

func (m *MockHandleStore) GetByEmail(ctx context.Context, email string) (*models.HandleRecord, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *MockHandleStore) GetByHandle(ctx context.Context, handle string) ([]models.HandleRecord, error) {
	if m.GetByHandleFunc != nil {
		return m.GetByHandleFunc(ctx, handle)
	}
	return nil, nil
}

func (m *MockHandleStore) GetByState(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error) {
	if m.GetByStateFunc != nil {
		return m.GetByStateFunc(ctx, state, limit)
	}
	return nil, nil
}

func (m *MockHandleStore) CountValid(ctx context.Context) (int, error) {
	if m.CountValidFunc != nil {
		return m.CountValidFunc(ctx)
	}
	return 0, nil
}

type MockNotificationStore struct {
	GetByHandleFunc       func(ctx context.Context, handle string) ([]models.Notification, error)
	GetByStateAndTypeFunc func(ctx context.Context, state models.NotificationState, typ models.NotificationType, limit int) ([]models.Notification, error)
	CountSentFunc         func(ctx context.Context, typ models.NotificationType) (int, error)
}

func (m *MockNotificationStore) GetByHandle(ctx context.Context, handle string) ([]models.Notification, error) {
	if m.GetByHandleFunc != nil {
		return m.GetByHandleFunc(ctx, handle)
	}
	return nil, nil
}

func (m *MockNotificationStore) GetByStateAndType(ctx context.Context, state models.NotificationState, typ models.NotificationType, limit int) ([]models.Notification, error) {
	if m.GetByStateAndTypeFunc != nil {
		return m.GetByStateAndTypeFunc(ctx, state, typ, limit)
	}
	return nil, nil
}

func (m *MockNotificationStore) CountSent(ctx context.Context, typ models.NotificationType) (int, error) {
	if m.CountSentFunc != nil {
		return m.CountSentFunc(ctx, typ)
	}
	return 0, nil
}

type MockPinger struct {
	err error
}

func (m MockPinger) Ping(context.Context) error { return m.err }

// ==========================
// Test Helper Functions
// ==========================

const (
	testWebhookKey = "webhook-secret"
	testToken      = "operator-token"
)

func newTestServer(t *testing.T, handles *MockHandleStore, notifications *MockNotificationStore) *Server {
	t.Helper()
	return New(Dependencies{
		Handles:       handles,
		Notifications: notifications,
		Verifier:      auth.NewVerifier(testWebhookKey, testToken),
		Checks:        map[string]Pinger{"postgres": MockPinger{}, "redis": MockPinger{}},
		Logger:        logger.NewTestLogger(t),
	})
}

func signedForm(sender, subject string) url.Values {
	form := url.Values{}
	form.Set("sender", sender)
	form.Set("subject", subject)
	form.Set("timestamp", "1700000000")
	form.Set("token", "abcdef")
	form.Set("signature", auth.Sign(testWebhookKey, "1700000000", "abcdef"))
	return form
}

func postForm(t *testing.T, s *Server, form url.Values) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, s *Server, target string, authorized bool) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorized {
		req.Header.Set("Authorization", "Basic "+testToken)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

// ==========================
// Register
// ==========================

func TestRegister_NewEmailCreates(t *testing.T) {
	handles := &MockHandleStore{}
	s := newTestServer(t, handles, &MockNotificationStore{})

	resp := postForm(t, s, signedForm("bob@example.com", "tourist"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [][2]string{{"bob@example.com", "tourist"}}, handles.created)
	assert.Empty(t, handles.resets)
}

func TestRegister_KnownEmailResetsExistingRecord(t *testing.T) {
	handles := &MockHandleStore{GetByEmailFunc: func(ctx context.Context, email string) (*models.HandleRecord, error) {
		assert.Equal(t, "bob@example.com", email)
		return &models.HandleRecord{ID: "rec-1", Email: email, Handle: "tourist", State: models.HandleStateValid}, nil
	}}
	s := newTestServer(t, handles, &MockNotificationStore{})

	resp := postForm(t, s, signedForm("bob@example.com", "Burunduk1"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [][2]string{{"rec-1", "Burunduk1"}}, handles.resets)
	assert.Empty(t, handles.created)
}

func TestRegister_TrimsFields(t *testing.T) {
	handles := &MockHandleStore{}
	s := newTestServer(t, handles, &MockNotificationStore{})

	form := signedForm("  bob@example.com \n", "\t tourist  ")
	resp := postForm(t, s, form)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [][2]string{{"bob@example.com", "tourist"}}, handles.created)
}

func TestRegister_JSONBodyWithOperatorToken(t *testing.T) {
	handles := &MockHandleStore{}
	s := newTestServer(t, handles, &MockNotificationStore{})

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"sender":"bob@example.com","subject":"tourist"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+testToken)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, handles.created, 1)
}

func TestRegister_HardFailures(t *testing.T) {
	badSignature := signedForm("bob@example.com", "tourist")
	badSignature.Set("signature", "0000")

	tests := []struct {
		name string
		form url.Values
	}{
		{"bad signature", badSignature},
		{"empty sender", signedForm("   ", "tourist")},
		{"sender without domain", signedForm("not-an-email", "tourist")},
		{"sender with header injection", signedForm("bob@example.com\r\nBcc: x@evil.com", "tourist")},
		{"sender with display name", signedForm("Bob <bob@example.com>", "tourist")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookups := 0
			handles := &MockHandleStore{GetByEmailFunc: func(context.Context, string) (*models.HandleRecord, error) {
				lookups++
				return nil, nil
			}}
			s := newTestServer(t, handles, &MockNotificationStore{})

			resp := postForm(t, s, tt.form)

			assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
			assert.Zero(t, lookups, "store must not be touched")
			assert.Empty(t, handles.created)
		})
	}
}

func TestDeliverableAddress(t *testing.T) {
	assert.True(t, deliverableAddress("bob@example.com"))
	assert.True(t, deliverableAddress("bob.smith+cf@mail.example.org"))
	assert.False(t, deliverableAddress("not-an-email"))
	assert.False(t, deliverableAddress("bob@example.com\nBcc: x@evil.com"))
	assert.False(t, deliverableAddress("Bob <bob@example.com>"))
	assert.False(t, deliverableAddress("<bob@example.com>"))
}

func TestRegister_StoreFailuresAskForRetry(t *testing.T) {
	storeErr := errors.New("connection refused")

	tests := []struct {
		name    string
		handles *MockHandleStore
	}{
		{"lookup fails", &MockHandleStore{GetByEmailFunc: func(context.Context, string) (*models.HandleRecord, error) {
			return nil, storeErr
		}}},
		{"create fails", &MockHandleStore{CreateFunc: func(context.Context, string, string) (*models.HandleRecord, error) {
			return nil, storeErr
		}}},
		{"reset fails", &MockHandleStore{
			GetByEmailFunc: func(context.Context, string) (*models.HandleRecord, error) {
				return &models.HandleRecord{ID: "rec-1"}, nil
			},
			ResetToUnknownFunc: func(context.Context, string, string) error { return storeErr },
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.handles, &MockNotificationStore{})
			resp := postForm(t, s, signedForm("bob@example.com", "tourist"))
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		})
	}
}

// ==========================
// Debug
// ==========================

func TestDebug_RequiresOperatorToken(t *testing.T) {
	s := newTestServer(t, &MockHandleStore{}, &MockNotificationStore{})

	resp := get(t, s, "/debug", false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDebug_Options(t *testing.T) {
	s := newTestServer(t, &MockHandleStore{}, &MockNotificationStore{})

	req := httptest.NewRequest(http.MethodOptions, "/debug", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type,Authorization", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestDebug_ByHandle(t *testing.T) {
	handles := &MockHandleStore{GetByHandleFunc: func(ctx context.Context, handle string) ([]models.HandleRecord, error) {
		assert.Equal(t, "tourist", handle)
		return []models.HandleRecord{{ID: "rec-1", Handle: "tourist", State: models.HandleStateValid}}, nil
	}}
	notifications := &MockNotificationStore{GetByHandleFunc: func(ctx context.Context, handle string) ([]models.Notification, error) {
		return []models.Notification{{ID: "n-1", Type: models.NotificationTypeRatingChange, Data: models.NotificationPayload{Handle: handle}}}, nil
	}}
	s := newTestServer(t, handles, notifications)

	resp := get(t, s, "/debug?handle=tourist", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body debugHandle
	decode(t, resp, &body)
	require.Len(t, body.Users, 1)
	assert.Equal(t, "rec-1", body.Users[0].ID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "tourist", body.Messages[0].Data.Handle)
}

func TestDebug_Queues(t *testing.T) {
	var limits []int
	handles := &MockHandleStore{GetByStateFunc: func(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error) {
		limits = append(limits, limit)
		if state == models.HandleStateInvalid {
			return []models.HandleRecord{{ID: "bad", State: state}}, nil
		}
		return nil, nil
	}}
	notifications := &MockNotificationStore{GetByStateAndTypeFunc: func(ctx context.Context, state models.NotificationState, typ models.NotificationType, limit int) ([]models.Notification, error) {
		limits = append(limits, limit)
		if state == models.NotificationStateUnsent && typ == models.NotificationTypeRatingChange {
			return []models.Notification{{ID: "n-1"}}, nil
		}
		return nil, nil
	}}
	s := newTestServer(t, handles, notifications)

	resp := get(t, s, "/debug?limit=5", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]map[string]json.RawMessage
	decode(t, resp, &body)

	assert.JSONEq(t, `[]`, string(body["users"]["unknown"]))
	assert.Contains(t, string(body["users"]["invalid"]), `"id":"bad"`)
	assert.Contains(t, string(body["messages"]["ratingChange"]), `"id":"n-1"`)
	assert.JSONEq(t, `{"unsent":[],"sent":[]}`, string(body["messages"]["invalidHandle"]))

	require.Len(t, limits, 7)
	for _, l := range limits {
		assert.Equal(t, 5, l)
	}
}

func TestDebug_DefaultLimitAndBadLimit(t *testing.T) {
	var seen int
	handles := &MockHandleStore{GetByStateFunc: func(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error) {
		seen = limit
		return nil, nil
	}}
	s := newTestServer(t, handles, &MockNotificationStore{})

	resp := get(t, s, "/debug", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 50, seen)

	for _, raw := range []string{"lots", "0", "-1"} {
		resp = get(t, s, "/debug?limit="+raw, true)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, raw)
	}
	assert.Equal(t, 50, seen, "store must not be queried unbounded")
}

func TestDebug_StoreFailure(t *testing.T) {
	handles := &MockHandleStore{GetByStateFunc: func(context.Context, models.HandleState, int) ([]models.HandleRecord, error) {
		return nil, errors.New("timeout")
	}}
	s := newTestServer(t, handles, &MockNotificationStore{})

	resp := get(t, s, "/debug", true)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// ==========================
// Analytics
// ==========================

func TestAnalytics(t *testing.T) {
	handles := &MockHandleStore{CountValidFunc: func(context.Context) (int, error) { return 1234, nil }}
	notifications := &MockNotificationStore{CountSentFunc: func(ctx context.Context, typ models.NotificationType) (int, error) {
		assert.Equal(t, models.NotificationTypeRatingChange, typ)
		return 98, nil
	}}
	s := newTestServer(t, handles, notifications)

	var users models.Analytics
	resp := get(t, s, "/analytics?type=users", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &users)
	assert.Equal(t, models.Analytics{SchemaVersion: 1, Label: "Active Users", Message: "1234"}, users)

	var messages models.Analytics
	resp = get(t, s, "/analytics?type=messages", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &messages)
	assert.Equal(t, models.Analytics{SchemaVersion: 1, Label: "Rating Changes Sent", Message: "98"}, messages)
}

func TestAnalytics_Failures(t *testing.T) {
	handles := &MockHandleStore{CountValidFunc: func(context.Context) (int, error) { return 0, errors.New("down") }}
	s := newTestServer(t, handles, &MockNotificationStore{})

	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/analytics?type=bogus", false).StatusCode)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/analytics", false).StatusCode)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/analytics?type=users", false).StatusCode)
}

// ==========================
// Operational endpoints
// ==========================

func TestHealthReadyMetrics(t *testing.T) {
	s := newTestServer(t, &MockHandleStore{}, &MockNotificationStore{})

	assert.Equal(t, http.StatusOK, get(t, s, "/health", false).StatusCode)
	assert.Equal(t, http.StatusOK, get(t, s, "/ready", false).StatusCode)

	resp := get(t, s, "/metrics", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestReady_DependencyDown(t *testing.T) {
	s := New(Dependencies{
		Handles:       &MockHandleStore{},
		Notifications: &MockNotificationStore{},
		Verifier:      auth.NewVerifier(testWebhookKey, testToken),
		Checks:        map[string]Pinger{"postgres": MockPinger{}, "redis": MockPinger{err: errors.New("redis ping failed")}},
		Logger:        logger.NewTestLogger(t),
	})

	resp := get(t, s, "/ready", false)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "redis ping failed", body.Checks["redis"])
}
