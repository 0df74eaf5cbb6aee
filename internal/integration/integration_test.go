package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
	"quiz-participation-service/internal/infra/postgres"
	pgmigrations "quiz-participation-service/internal/infra/postgres/migrations"
	infraredis "quiz-participation-service/internal/infra/redis"
)

// Two service instances share Postgres and Redis, the way a scaled-out deployment runs.
func TestParticipationAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := migrateAndSeed(t, ctx, pgURL, sampleQuiz())
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	newInstance := func() *app.ParticipationService {
		log, _ := test.NewNullLogger()
		loader := postgres.NewQuizLoader(pool)
		hub := app.NewAttemptHub()
		relay := infraredis.NewEventRelay(redisClient, log)
		if err := relay.Start(ctx, hub); err != nil {
			t.Fatalf("start relay: %v", err)
		}
		hub.SetForwarder(relay)
		return app.NewParticipationService(
			infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute, log),
			loader,
			postgres.NewParticipationStore(db),
			app.WithHub(hub),
			app.WithLogger(log),
		)
	}
	nodeA, nodeB := newInstance(), newInstance()

	ticket, err := nodeA.Admit(ctx, "quiz-1", domain.ParticipantInfo{FullName: "Alice", StudentID: "S-1"})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := nodeB.Admit(ctx, "quiz-1", domain.ParticipantInfo{FullName: "Alice", StudentID: "S-1"}); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota to hold across instances, got %v", err)
	}

	events, unsubscribe := nodeB.Hub().Subscribe(ticket.AttemptID)
	defer unsubscribe()

	if _, err := nodeA.ToggleAnswer(ctx, ticket.AttemptID, "q1", "o2"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != domain.EventSelection || ev.Selection == nil || ev.Selection.AnswerID != "o2" || !ev.Selected {
			t.Fatalf("unexpected relayed event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("selection was not relayed to the other instance")
	}

	content, err := nodeB.Content(ctx, ticket.AttemptID)
	if err != nil {
		t.Fatalf("content on other instance: %v", err)
	}
	if len(content.Questions) != 1 {
		t.Fatalf("unexpected content %+v", content)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, node := range []*app.ParticipationService{nodeA, nodeB, nodeA, nodeB} {
		wg.Add(1)
		go func(svc *app.ParticipationService) {
			defer wg.Done()
			_, _, err := svc.Submit(ctx, ticket.AttemptID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadySubmitted), errors.Is(err, domain.ErrConcurrencyConflict):
				conflicts++
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}(node)
	}
	wg.Wait()
	if successes != 1 || conflicts != 3 {
		t.Fatalf("expected exactly one submission, got %d successes and %d conflicts", successes, conflicts)
	}

	result, err := nodeB.Result(ctx, ticket.AttemptID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Score == nil || result.Score.StringFixed(2) != "10.00" {
		t.Fatalf("unexpected score %v", result.Score)
	}
	if result.Message != "You scored 10.00 points! Correct answers: 1/1" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
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
		_ = container.Terminate(context.Background())
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
		_ = container.Terminate(context.Background())
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string, quiz domain.QuizConfig) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	return db
}

func sampleQuiz() domain.QuizConfig {
	return domain.QuizConfig{
		ID:                       "quiz-1",
		Title:                    "Arithmetic",
		Published:                true,
		MaxAttempts:              1,
		AccessType:               domain.AccessPublic,
		ShowScoreAfterSubmission: true,
		CorrectAnswersMode:       domain.CorrectAnswersImmediately,
		Questions: []domain.Question{
			{
				ID:      "q1",
				Content: "What is 2 + 2?",
				Points:  1,
				Answers: []domain.Answer{
					{ID: "o1", Content: "3"},
					{ID: "o2", Content: "4", Correct: true},
					{ID: "o3", Content: "5"},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
