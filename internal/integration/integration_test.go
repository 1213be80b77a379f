package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"quizgate/internal/app"
	"quizgate/internal/domain"
	"quizgate/internal/infra/memory"
	pgloader "quizgate/internal/infra/postgres"
	pgmigrations "quizgate/internal/infra/postgres/migrations"
	infraredis "quizgate/internal/infra/redis"
	transport "quizgate/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

const webhookSecret = "whsec_integration"

func TestPaidSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestions(t, ctx, pgURL, sampleQuestions())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	cfg := app.DefaultConfig()
	cfg.TotalQuestions = 2
	bank := memory.NewQuestionBank(pgloader.NewQuestionLoader(pool), 5*time.Minute)
	subs := infraredis.NewSubscriptionStore(redisClient)
	service := app.NewQuizService(cfg, subs, memory.NewSessionStore(), bank)
	notifier := &recordingNotifier{}
	service.SetNotifier(notifier)

	// Payment confirmation through the real webhook endpoint.
	handler := transport.NewWebhookHandler(service, webhookSecret)
	body := `{"event":"payment_link.paid","payload":{"payment_link":{"entity":{"notes":{"user_id":"42"}}}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/razorpay", bytes.NewReader([]byte(body)))
	req.Header.Set("X-Razorpay-Signature", sign(body))
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", rec.Code)
	}
	if !service.IsSubscribed(ctx, 42) {
		t.Fatalf("expected subscription active in redis")
	}

	// Gated test session over the Postgres-backed bank.
	render, err := service.StartSession(ctx, 42, 4242)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if render.Total != 2 {
		t.Fatalf("expected 2 questions, got %d", render.Total)
	}

	if _, err := service.SubmitAnswer(ctx, 42, 0, correctLabel(t, render)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := service.Navigate(ctx, 42, domain.NavFinish)
	if err != nil || !res.Finished {
		t.Fatalf("finish: res=%+v err=%v", res, err)
	}

	summaries := notifier.summaries()
	if len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.chatID != 4242 || s.summary.Correct != 1 || s.summary.Unanswered != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

// correctLabel resolves the right answer of the rendered question; all seeded
// questions share the "right" label.
func correctLabel(t *testing.T, render domain.RenderQuestion) string {
	t.Helper()
	for _, opt := range render.Options {
		if opt == "right" {
			return opt
		}
	}
	t.Fatalf("seeded question missing the expected correct option: %+v", render.Options)
	return ""
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, dsn string, questions []domain.Question) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			t.Fatalf("marshal question: %v", err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO questions (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, q.ID, string(data)); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"right", "wrong"}, Correct: "right"},
		{ID: "q2", Prompt: "Capital of France?", Options: []string{"right", "wrong"}, Correct: "right"},
	}
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

type summaryRecord struct {
	chatID  int64
	summary domain.Summary
}

type recordingNotifier struct {
	mu   sync.Mutex
	sums []summaryRecord
}

func (n *recordingNotifier) NotifySummary(chatID int64, s domain.Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sums = append(n.sums, summaryRecord{chatID: chatID, summary: s})
}

func (n *recordingNotifier) NotifySubscribed(int64, time.Time) {}

func (n *recordingNotifier) summaries() []summaryRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]summaryRecord, len(n.sums))
	copy(out, n.sums)
	return out
}
