package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

const consumerRetryDelay = 5 * time.Second

// RunBackgroundConsumers starts the webhook and push delivery loops. Each loop
// re-subscribes after a channel loss; both exit when ctx is cancelled.
func (svc *dispatchService) RunBackgroundConsumers(ctx context.Context) {
	go svc.consumeLoop(ctx, contracts.QueueWebhookJobs, "dispatch-webhook-worker", svc.handleWebhookJob)
	go svc.consumeLoop(ctx, contracts.QueuePushJobs, "dispatch-push-worker", svc.handlePushJob)
}

func (svc *dispatchService) consumeLoop(ctx context.Context, queue, tag string, handler func(context.Context, amqp.Delivery) error) {
	for {
		err := svc.mq.Consume(ctx, queue, tag, 8, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			svc.logger.Error(ctx, "consumer_stopped", "Queue consumer stopped; retrying", err,
				map[string]any{"queue": queue})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(consumerRetryDelay):
		}
	}
}

// handleWebhookJob delivers one queued webhook. The endpoint config is read
// per delivery so operators can rotate the URL or secret without redeploying.
func (svc *dispatchService) handleWebhookJob(ctx context.Context, d amqp.Delivery) error {
	var job contracts.WebhookJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		svc.logger.Error(ctx, "webhook_job_decode_failed", "Dropping malformed webhook job", err, nil)
		return nil // poison message; ack and move on
	}

	w, err := svc.webhookSettings(ctx)
	if err != nil {
		return err // nack; settings store hiccup is retryable
	}
	if !w.Configured() {
		svc.logger.Info(ctx, "webhook_job_skipped", "Webhook disabled since the job was queued", map[string]any{
			"event":    job.Event,
			"route_id": job.RouteID,
		})
		return nil
	}

	res := svc.dispatcher.Dispatch(ctx, w.URL, job.Event, job.Payload, w.Secret, 0)
	if !res.OK && res.Err != nil {
		// retries are exhausted inside Dispatch; surface the failure in the
		// log but ack so the queue never wedges on a dead receiver
		svc.logger.Error(ctx, "webhook_job_failed", "Webhook delivery gave up", res.Err, map[string]any{
			"event":    job.Event,
			"route_id": job.RouteID,
			"attempts": res.Attempts,
			"status":   res.HTTPStatus,
		})
	}
	return nil
}

// handlePushJob sends one queued push notification.
func (svc *dispatchService) handlePushJob(ctx context.Context, d amqp.Delivery) error {
	var job contracts.PushJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		svc.logger.Error(ctx, "push_job_decode_failed", "Dropping malformed push job", err, nil)
		return nil
	}

	title, body := pushText(job.Event, job.Data)
	svc.notifier.SendToUser(ctx, job.UserID, title, body, job.Data)
	return nil
}

// pushText renders the human-facing notification text for an event.
func pushText(event string, data map[string]string) (title, body string) {
	name := data["routeName"]
	switch event {
	case contracts.EventRouteSent:
		if name != "" {
			return "New route assigned", fmt.Sprintf("Route %q is ready to start", name)
		}
		return "New route assigned", "A new route is ready to start"
	case contracts.EventRouteCompleted:
		if name != "" {
			return "Route completed", fmt.Sprintf("Route %q has finished", name)
		}
		return "Route completed", "A route has finished"
	default:
		return "Dispatch update", event
	}
}
