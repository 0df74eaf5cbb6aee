package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"quiz-participation-service/internal/config"
	"quiz-participation-service/internal/infra/rabbitmq"
)

// NewMailerCmd runs the worker that drains queued result e-mails into SMTP.
func NewMailerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mailer",
		Short: "Deliver queued result e-mails over SMTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMailer(cmd.Context(), *configPath)
		},
	}
}

func runMailer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	if cfg.RabbitMQ.URL == "" || cfg.SMTP.Host == "" {
		return fmt.Errorf("mailer needs both rabbitmq.url and smtp.host")
	}

	client, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	deliveries, err := client.Consume(rabbitmq.ResultEmailQueue, cfg.RabbitMQ.Prefetch)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("queue", rabbitmq.ResultEmailQueue).Info("mailer started")
	return rabbitmq.NewResultConsumer(newSMTPSender(cfg), log).Run(ctx, deliveries)
}
