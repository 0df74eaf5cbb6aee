package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/config"
	"quiz-participation-service/internal/domain"
	"quiz-participation-service/internal/infra/memory"
	"quiz-participation-service/internal/infra/postgres"
	"quiz-participation-service/internal/infra/rabbitmq"
	redisinfra "quiz-participation-service/internal/infra/redis"
	"quiz-participation-service/internal/infra/smtp"
)

// deps holds the wired service and everything that must be closed with it.
type deps struct {
	service *app.ParticipationService
	hub     *app.AttemptHub
	redis   *redis.Client
	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps wires catalog, store, cache and notifier from cfg. Postgres is used when
// configured; otherwise quizzes come from the seed file (or built-in samples) and
// attempts live in memory.
func buildDeps(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*deps, error) {
	d := &deps{hub: app.NewAttemptHub()}
	built := false
	defer func() {
		if !built {
			d.Close()
		}
	}()

	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = d.redis.Close() })
	}

	var (
		loader      memory.QuizLoader
		invitations app.InvitationRepository
		store       app.ParticipationStore
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		pgLoader := postgres.NewQuizLoader(pool)
		loader, invitations = pgLoader, pgLoader

		db := openBun(cfg.Postgres.URL)
		d.closers = append(d.closers, func() { _ = db.Close() })
		store = postgres.NewParticipationStore(db)
	} else {
		seed := memory.Seed{Quizzes: sampleQuizzes()}
		if cfg.Quiz.SeedFile != "" {
			var err error
			if seed, err = memory.LoadSeed(cfg.Quiz.SeedFile); err != nil {
				return nil, err
			}
		}
		log.WithField("quizzes", len(seed.Quizzes)).Warn("postgres not configured, attempts are kept in memory")
		loader = memory.NewStaticQuizLoader(seed.Quizzes)
		invitations = memory.NewStaticInvitations(seed.Invitations)
		store = memory.NewParticipationStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if d.redis != nil {
		quizzes = redisinfra.NewQuizRepository(d.redis, loader, quizTTL, log)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	opts := []app.Option{app.WithHub(d.hub), app.WithLogger(log)}
	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		return nil, err
	}
	if notifier != nil {
		opts = append(opts, app.WithNotifier(notifier))
		if closer, isCloser := notifier.(interface{ Close() error }); isCloser {
			d.closers = append(d.closers, func() { _ = closer.Close() })
		}
	}

	d.service = app.NewParticipationService(quizzes, invitations, store, opts...)
	built = true
	return d, nil
}

type queuedNotifier struct {
	*rabbitmq.ResultPublisher
	client *rabbitmq.Client
}

func (n queuedNotifier) Close() error { return n.client.Close() }

// buildNotifier prefers the RabbitMQ queue drained by the mailer command and falls
// back to sending over SMTP in-process.
func buildNotifier(cfg config.Config, log logrus.FieldLogger) (app.ResultNotifier, error) {
	switch {
	case cfg.RabbitMQ.URL != "":
		client, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		if _, err := client.DeclareQueue(rabbitmq.ResultEmailQueue); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("declare result email queue: %w", err)
		}
		return queuedNotifier{ResultPublisher: rabbitmq.NewResultPublisher(client), client: client}, nil
	case cfg.SMTP.Host != "":
		return newSMTPSender(cfg), nil
	default:
		log.Info("no rabbitmq or smtp configured, result e-mails are disabled")
		return nil, nil
	}
}

func newSMTPSender(cfg config.Config) *smtp.Sender {
	return smtp.NewSender(smtp.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		From:        cfg.SMTP.From,
		DisplayName: cfg.SMTP.DisplayName,
	})
}

func openBun(url string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func newSweeper(d *deps, cfg config.Config) *app.ExpirySweeper {
	grace := config.TTLDuration(cfg.Sweep.Grace, 0)
	return app.NewExpirySweeper(d.service, grace, cfg.Sweep.Batch, cfg.Sweep.Concurrency)
}

// sampleQuizzes is served when neither Postgres nor a seed file is configured.
func sampleQuizzes() map[string]domain.QuizConfig {
	duration := 10
	return map[string]domain.QuizConfig{
		"quiz-1": {
			ID:                       "quiz-1",
			Title:                    "Arithmetic warm-up",
			Published:                true,
			DurationMinutes:          &duration,
			MaxAttempts:              3,
			AccessType:               domain.AccessPublic,
			ShuffleAnswers:           true,
			ShowScoreAfterSubmission: true,
			CorrectAnswersMode:       domain.CorrectAnswersImmediately,
			Questions: []domain.Question{
				{
					ID:      "q1",
					Content: "What is 2 + 2?",
					Points:  1,
					Answers: []domain.Answer{
						{ID: "q1-o1", Content: "3"},
						{ID: "q1-o2", Content: "4", Correct: true},
						{ID: "q1-o3", Content: "5"},
					},
				},
				{
					ID:      "q2",
					Content: "Which numbers are even?",
					Points:  2,
					Answers: []domain.Answer{
						{ID: "q2-o1", Content: "2", Correct: true},
						{ID: "q2-o2", Content: "3"},
						{ID: "q2-o3", Content: "8", Correct: true},
					},
				},
			},
		},
	}
}
