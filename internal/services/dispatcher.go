package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/huangang/timelogbot/pkg/logger"
	"github.com/slack-go/slack"
)

const DefaultDeliveryTimeout = 10 * time.Second

// Delivery is one outbound message. Exactly one of Blocks or Text is used:
// Blocks go to a Slack webhook, Text goes through the platform adapter.
type Delivery struct {
	Recipient string // for logs only
	Webhook   string
	Platform  string
	Blocks    []slack.Block
	Text      string
}

func (d Delivery) empty() bool {
	return d.Webhook == "" || (len(d.Blocks) == 0 && d.Text == "")
}

// Dispatcher posts rendered messages to webhooks. It never retries.
type Dispatcher struct {
	client *http.Client
}

func NewDispatcher(client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultDeliveryTimeout}
	}
	return &Dispatcher{client: client}
}

// DeliverBlocks posts {"blocks": [...]} to a Slack webhook. Empty block lists are skipped.
func (d *Dispatcher) DeliverBlocks(ctx context.Context, webhook string, blocks []slack.Block) error {
	if webhook == "" || len(blocks) == 0 {
		return nil
	}
	msg := &slack.WebhookMessage{Blocks: &slack.Blocks{BlockSet: blocks}}
	return slack.PostWebhookCustomHTTPContext(ctx, webhook, d.client, msg)
}

// DeliverText posts text wrapped in the platform's envelope. Empty text is skipped.
func (d *Dispatcher) DeliverText(ctx context.Context, platform, webhook, text string) error {
	if webhook == "" || text == "" {
		return nil
	}
	return getAdapter(platform).SendTextMessage(ctx, d.client, webhook, text)
}

// Deliver sends one delivery.
func (d *Dispatcher) Deliver(ctx context.Context, delivery Delivery) error {
	if len(delivery.Blocks) > 0 {
		return d.DeliverBlocks(ctx, delivery.Webhook, delivery.Blocks)
	}
	return d.DeliverText(ctx, delivery.Platform, delivery.Webhook, delivery.Text)
}

// DeliverAll sends every delivery concurrently. Each failure is logged and
// swallowed on its own so one recipient never blocks another; the call returns
// once every send has finished.
func (d *Dispatcher) DeliverAll(ctx context.Context, deliveries []Delivery) (delivered, failed int) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, delivery := range deliveries {
		if delivery.empty() {
			logger.Debug().Str("recipient", delivery.Recipient).Msg("[Dispatcher] Empty payload, skipped")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			err := d.Deliver(ctx, delivery)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Error().Err(err).Str("recipient", delivery.Recipient).Msg("[Dispatcher] Delivery failed")
				return
			}
			delivered++
			logger.Info().Str("recipient", delivery.Recipient).Msg("[Dispatcher] Delivered")
		}()
	}

	wg.Wait()
	return delivered, failed
}
