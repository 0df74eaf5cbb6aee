package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"quiz-participation-service/internal/app"
	"quiz-participation-service/internal/domain"
)

// ResultEmailQueue carries result e-mails from the API to the mailer worker.
const ResultEmailQueue = "quiz.result_email"

type publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// ResultPublisher implements app.ResultNotifier by queueing the e-mail for the mailer.
type ResultPublisher struct {
	pub   publisher
	queue string
}

func NewResultPublisher(pub publisher) *ResultPublisher {
	return &ResultPublisher{pub: pub, queue: ResultEmailQueue}
}

func (p *ResultPublisher) SendResultEmail(ctx context.Context, msg domain.ResultEmail) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode result email: %w", err)
	}
	if err := p.pub.Publish(ctx, p.queue, body); err != nil {
		return fmt.Errorf("publish result email: %w", err)
	}
	return nil
}

// ResultConsumer drains the result e-mail queue into a sender.
type ResultConsumer struct {
	sender app.ResultNotifier
	log    logrus.FieldLogger
}

func NewResultConsumer(sender app.ResultNotifier, log logrus.FieldLogger) *ResultConsumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResultConsumer{sender: sender, log: log.WithField("queue", ResultEmailQueue)}
}

// Run handles deliveries until ctx is cancelled or the channel closes. Undecodable
// messages are dropped; a failed send is requeued once and dropped on redelivery.
func (c *ResultConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *ResultConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg domain.ResultEmail
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.WithError(err).Warn("dropping malformed result email")
		_ = d.Nack(false, false)
		return
	}

	log := c.log.WithFields(logrus.Fields{"to": msg.To, "quiz": msg.QuizTitle})
	if err := c.sender.SendResultEmail(ctx, msg); err != nil {
		requeue := !d.Redelivered
		log.WithError(err).WithField("requeue", requeue).Warn("result email not sent")
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
	log.Info("result email sent")
}
