package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caseline/internal/config"
	"caseline/internal/domain"
	"caseline/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookBatchSize    = 100
)

// webhookEvent is the JSON body delivered to each hook.
type webhookEvent struct {
	Event    string                `json:"event"`
	Delivery string                `json:"delivery"`
	CaseID   string                `json:"case_id"`
	Record   domain.ActivityRecord `json:"record"`
}

// webhookDispatcher tails the global activity sequence and posts new
// records to the configured hooks. Each hook carries its own cursor so
// one slow endpoint does not hold the others back.
type webhookDispatcher struct {
	engine  engine.Engine
	hooks   []config.Webhook
	log     *zap.Logger
	cursors map[string]int64
	clients map[string]*http.Client
}

// StartWebhookDispatcher begins delivering activity records to the given
// hooks until ctx is cancelled. It returns immediately when no hook is
// enabled. Cursors start at the current end of the ledger so a restart
// does not replay history.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, hooks []config.Webhook, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &webhookDispatcher{
		engine:  e,
		log:     log,
		cursors: make(map[string]int64),
		clients: make(map[string]*http.Client),
	}
	for _, h := range hooks {
		if h.Disabled {
			continue
		}
		d.hooks = append(d.hooks, h)
		d.clients[h.Name] = &http.Client{Timeout: h.TimeoutDuration()}
	}
	if len(d.hooks) == 0 {
		return
	}
	seq, err := e.Repo.LatestActivitySeq(ctx)
	if err != nil {
		log.Warn("webhook cursor seed failed, starting from zero", zap.Error(err))
	}
	for _, h := range d.hooks {
		d.cursors[h.Name] = seq
	}
	go d.run(ctx)
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	d.log.Info("webhook dispatcher started", zap.Int("hooks", len(d.hooks)))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range d.hooks {
				d.deliverPending(ctx, d.hooks[i])
			}
		}
	}
}

func (d *webhookDispatcher) deliverPending(ctx context.Context, hook config.Webhook) {
	cursor := d.cursors[hook.Name]
	records, err := d.engine.Repo.ActivityAfter(ctx, cursor, webhookBatchSize)
	if err != nil {
		d.log.Warn("webhook poll failed", zap.String("hook", hook.Name), zap.Error(err))
		return
	}
	for _, rec := range records {
		if !hook.Wants(rec.Type) {
			d.cursors[hook.Name] = rec.Seq
			continue
		}
		if err := d.post(ctx, hook, rec); err != nil {
			d.log.Warn("webhook delivery failed",
				zap.String("hook", hook.Name),
				zap.Int64("seq", rec.Seq),
				zap.Error(err))
			webhookDeliveries.WithLabelValues(hook.Name, "error").Inc()
			// Leave the cursor in place and retry this record next tick.
			return
		}
		webhookDeliveries.WithLabelValues(hook.Name, "ok").Inc()
		d.cursors[hook.Name] = rec.Seq
	}
}

func (d *webhookDispatcher) post(ctx context.Context, hook config.Webhook, rec domain.ActivityRecord) error {
	evt := webhookEvent{
		Event:    rec.Type,
		Delivery: uuid.NewString(),
		CaseID:   rec.CaseID,
		Record:   rec,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caseline-Event", evt.Event)
	req.Header.Set("X-Caseline-Delivery", evt.Delivery)
	if hook.Secret != "" {
		req.Header.Set("X-Caseline-Secret", hook.Secret)
	}
	resp, err := d.clients[hook.Name].Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
