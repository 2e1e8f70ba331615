package mailer

import (
	"context"

	"github.com/eatright/eatright-api/pkg/helpers"
)

// QueueNotifier publishes EmailJobs to RabbitMQ for the email worker to
// deliver. It decouples the auth flows from SMTP latency and failures.
type QueueNotifier struct {
	Pub *helpers.RabbitPublisher
}

func NewQueueNotifier(pub *helpers.RabbitPublisher) *QueueNotifier {
	return &QueueNotifier{Pub: pub}
}

func (n *QueueNotifier) Send(ctx context.Context, job EmailJob) error {
	return n.Pub.PublishJSON(ctx, job)
}
