// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rating-notifier/internal/api"
	"rating-notifier/internal/common/auth"
	"rating-notifier/internal/common/codeforces"
	"rating-notifier/internal/common/config"
	"rating-notifier/internal/common/database"
	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/observability"
	"rating-notifier/internal/common/scheduler"
	"rating-notifier/internal/detector"
	"rating-notifier/internal/models"
	"rating-notifier/internal/outbox"
	"rating-notifier/internal/registry"

	de "rating-notifier/internal/workers/delivery/deliver-emails"
	pr "rating-notifier/internal/workers/handles/poll-ratings"
	ri "rating-notifier/internal/workers/handles/reap-invalid-handles"
	vu "rating-notifier/internal/workers/handles/verify-unknown-handles"
)

const operatorToken = "e2e-token"

// ==========================
// Fakes
// ==========================

// recordingMailer stands in for SES/SMTP and keeps every delivered batch.
type recordingMailer struct {
	mu   sync.Mutex
	sent map[models.NotificationType][]models.Notification
}

func (m *recordingMailer) Send(_ context.Context, typ models.NotificationType, notifications []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[models.NotificationType][]models.Notification{}
	}
	m.sent[typ] = append(m.sent[typ], notifications...)
	return nil
}

// codeforcesStub answers user.info like the real API: the first unknown
// handle in a request fails the whole request.
func codeforcesStub(t *testing.T, users map[string]models.RatingSnapshot) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var handles []string
		// url.Query drops pairs containing ';'.
		for _, pair := range strings.Split(r.URL.RawQuery, "&") {
			if v, ok := strings.CutPrefix(pair, "handles="); ok {
				handles = strings.Split(v, ";")
			}
		}

		result := make([]models.RatingSnapshot, 0, len(handles))
		for _, h := range handles {
			u, ok := users[h]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintf(w, `{"status":"FAILED","comment":"handles: User with handle %s not found"}`, h)
				return
			}
			result = append(result, u)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "OK", "result": result})
	}))
}

// ==========================
// Setup
// ==========================

type pipeline struct {
	registry  *registry.PostgresRegistry
	outbox    *outbox.PostgresOutbox
	scheduler *scheduler.Scheduler
	server    *api.Server
	mailer    *recordingMailer
}

func setupPipeline(t *testing.T) *pipeline {
	t.Helper()

	dsn := os.Getenv("E2E_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("E2E_POSTGRES_DSN not set, skipping end-to-end test")
	}
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	pg, err := database.NewPostgres(config.PostgresConfig{DSN: dsn, MaxConnections: 5, MaxIdle: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, pg.Ping(ctx), "PostgreSQL ping failed")
	require.NoError(t, database.RunMigrations(ctx, pg.DB))
	_, err = pg.DB.ExecContext(ctx, `TRUNCATE handles, notifications`)
	require.NoError(t, err)

	var rdb *redis.Client
	if addr := os.Getenv("E2E_REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	}
	t.Cleanup(func() { _ = rdb.Close() })

	stub := codeforcesStub(t, map[string]models.RatingSnapshot{
		"tourist": {Handle: "tourist", Rating: 3857, Rank: "legendary grandmaster"},
	})
	t.Cleanup(stub.Close)

	reg := registry.NewPostgresRegistry(pg.DB, log)
	ob := outbox.NewPostgresOutbox(pg.DB, log)
	ratings := codeforces.NewHTTPClient(stub.URL, 5*time.Second, log)
	mailer := &recordingMailer{}
	reporter := apperrors.NewReporter(log, nil)
	obs := observability.NewNoop()
	job := config.JobConfig{BatchSize: 50, LockTTL: 60000}

	sched := scheduler.New(scheduler.NewRedisLocker(rdb), log)
	register := func(name string, j scheduler.Job) {
		require.NoError(t, sched.Register(name, j, time.Minute, time.Minute))
	}
	register(vu.TaskType, vu.NewHandler(vu.LoadConfig(job), reg, ratings, reporter, obs, log))
	register(pr.TaskType, pr.NewHandler(pr.LoadConfig(job), reg, ratings, ob, detector.New(log), reporter, obs, log))
	register(ri.TaskType, ri.NewHandler(ri.LoadConfig(job), reg, ob, reporter, obs, log))
	for _, typ := range models.NotificationTypes {
		h, err := de.NewHandler(de.LoadConfig(job), typ, ob, mailer, reporter, obs, log)
		require.NoError(t, err)
		register(h.TaskType(), h)
	}

	server := api.New(api.Dependencies{
		Handles:       reg,
		Notifications: ob,
		Verifier:      auth.NewVerifier("e2e-webhook-key", operatorToken),
		Checks:        map[string]api.Pinger{"postgres": pg},
		Logger:        log,
	})

	return &pipeline{registry: reg, outbox: ob, scheduler: sched, server: server, mailer: mailer}
}

func (p *pipeline) register(t *testing.T, email, handle string) {
	t.Helper()
	form := url.Values{"sender": {email}, "subject": {handle}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+operatorToken)
	resp, err := p.server.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (p *pipeline) run(t *testing.T, job string) {
	t.Helper()
	require.NoError(t, p.scheduler.RunOnce(context.Background(), job))
}

func (p *pipeline) badge(t *testing.T, typ string) models.Analytics {
	t.Helper()
	resp, err := p.server.App().Test(httptest.NewRequest(http.MethodGet, "/analytics?type="+typ, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out models.Analytics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// ==========================
// End-to-end
// ==========================

func TestFullPipeline(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	p.register(t, "bob@example.com", "tourist")
	p.register(t, "carol@example.com", "gh0st")

	// First pass finds gh0st and stops; the second resolves tourist.
	p.run(t, vu.TaskType)
	invalid, err := p.registry.GetByState(ctx, models.HandleStateInvalid, 10)
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, "gh0st", invalid[0].Handle)

	p.run(t, vu.TaskType)
	valid, err := p.registry.GetByState(ctx, models.HandleStateValid, 10)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, "tourist", valid[0].Handle)
	assert.Nil(t, valid[0].Data)

	p.run(t, pr.TaskType)
	valid, err = p.registry.GetByState(ctx, models.HandleStateValid, 10)
	require.NoError(t, err)
	require.NotNil(t, valid[0].Data)
	assert.Equal(t, 3857, valid[0].Data.Rating)

	p.run(t, ri.TaskType)
	invalid, err = p.registry.GetByState(ctx, models.HandleStateInvalid, 10)
	require.NoError(t, err)
	assert.Empty(t, invalid)

	p.run(t, de.TaskTypeRatingChange)
	p.run(t, de.TaskTypeInvalidHandle)

	require.Len(t, p.mailer.sent[models.NotificationTypeRatingChange], 1)
	change := p.mailer.sent[models.NotificationTypeRatingChange][0]
	assert.Equal(t, "bob@example.com", change.Email)
	require.NotNil(t, change.Data.Rating)
	assert.Equal(t, 3857, *change.Data.Rating)
	assert.Equal(t, "rgb(255, 0, 0)", change.Data.Color)

	require.Len(t, p.mailer.sent[models.NotificationTypeInvalidHandle], 1)
	assert.Equal(t, "carol@example.com", p.mailer.sent[models.NotificationTypeInvalidHandle][0].Email)

	unsent, err := p.outbox.GetByStateAndType(ctx, models.NotificationStateUnsent, models.NotificationTypeRatingChange, 10)
	require.NoError(t, err)
	assert.Empty(t, unsent)

	// A second poll with no rating change enqueues nothing.
	p.run(t, pr.TaskType)
	unsent, err = p.outbox.GetByStateAndType(ctx, models.NotificationStateUnsent, models.NotificationTypeRatingChange, 10)
	require.NoError(t, err)
	assert.Empty(t, unsent)

	assert.Equal(t, "1", p.badge(t, "users").Message)
	assert.Equal(t, "1", p.badge(t, "messages").Message)
}

func TestReRegistrationResetsHandle(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	p.register(t, "bob@example.com", "tourist")
	p.run(t, vu.TaskType)
	p.run(t, pr.TaskType)

	p.register(t, "bob@example.com", "Burunduk1")

	records, err := p.registry.GetByHandle(ctx, "Burunduk1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.HandleStateUnknown, records[0].State)
	assert.Nil(t, records[0].Data)

	old, err := p.registry.GetByHandle(ctx, "tourist")
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestStaleBatchWritesSkipReRegisteredRecords(t *testing.T) {
	p := setupPipeline(t)
	ctx := context.Background()

	p.register(t, "carol@example.com", "gh0st")
	p.register(t, "bob@example.com", "tourist")
	p.run(t, vu.TaskType)
	p.run(t, vu.TaskType)

	staleInvalid, err := p.registry.GetByState(ctx, models.HandleStateInvalid, 10)
	require.NoError(t, err)
	require.Len(t, staleInvalid, 1)
	staleValid, err := p.registry.GetByState(ctx, models.HandleStateValid, 10)
	require.NoError(t, err)
	require.Len(t, staleValid, 1)
	staleValid[0].Data = &models.RatingSnapshot{Handle: "tourist", Rating: 3857}

	// Both owners re-register between the jobs' read and write.
	p.register(t, "carol@example.com", "jiangly")
	p.register(t, "bob@example.com", "Benq")

	require.NoError(t, p.registry.Delete(ctx, staleInvalid))
	require.NoError(t, p.registry.UpdateData(ctx, staleValid))

	unknown, err := p.registry.GetByState(ctx, models.HandleStateUnknown, 10)
	require.NoError(t, err)
	require.Len(t, unknown, 2)
	for _, rec := range unknown {
		assert.Nil(t, rec.Data, rec.Handle)
	}
}
