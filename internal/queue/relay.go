package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"takeaway/internal/model"
	"takeaway/internal/store"
)

// Publisher 发布一条订单事件；*Producer 满足该接口。
type Publisher interface {
	Publish(ctx context.Context, msg OrderMessage) error
}

// RelayConfig 控制 outbox 轮询节奏与失败重试。
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Relay 将 outbox 表中的订单事件异步转发到 Kafka。
// 语义：发布成功后才删除 outbox 行，失败则按指数退避重新排期，至少投递一次。
type Relay struct {
	outbox store.OutboxRepository
	pub    Publisher
	cfg    RelayConfig
	log    *slog.Logger
	now    func() time.Time
}

func NewRelay(outbox store.OutboxRepository, pub Publisher, cfg RelayConfig, log *slog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{outbox: outbox, pub: pub, cfg: cfg, log: log, now: time.Now}
}

// Run 周期性地投递到期事件，直到 ctx 结束。
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// 一批满了说明还有积压，不等下一个 tick。
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.log.Error("relay poll outbox", "error", err)
				}
				break
			}
			if n < r.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush 处理一批到期事件，返回本批取到的事件数。
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.outbox.Due(ctx, r.now(), r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		if ctx.Err() != nil {
			return len(events), ctx.Err()
		}
		if err := r.processOne(ctx, ev); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

// processOne 只在 outbox 自身读写失败时返回错误；发布失败转为重新排期。
func (r *Relay) processOne(ctx context.Context, ev model.OrderEvent) error {
	msg, err := parseOrderEvent(ev.Payload)
	if err != nil {
		// 脏消息直接删除，避免阻塞队列。
		r.log.Warn("relay drop malformed event", "event_id", ev.ID, "order_id", ev.OrderID, "error", err)
		return r.outbox.Delete(ctx, ev.ID)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.pub.Publish(pubCtx, msg); err != nil {
		attempt := ev.RetryCount + 1
		next := r.now().Add(backoff(r.cfg.BaseBackoff, r.cfg.MaxBackoff, attempt))
		if attempt >= r.cfg.MaxAttempts {
			r.log.Error("relay giving up on event", "event_id", ev.ID, "order_id", ev.OrderID, "attempts", attempt, "error", err)
		} else {
			r.log.Warn("relay publish failed", "event_id", ev.ID, "order_id", ev.OrderID, "attempt", attempt, "error", err)
		}
		return r.outbox.Reschedule(ctx, ev.ID, attempt, err.Error(), next)
	}
	return r.outbox.Delete(ctx, ev.ID)
}

// backoff 第 n 次失败后等待 base × 2^(n-1)，不超过 ceiling。
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func parseOrderEvent(payload []byte) (OrderMessage, error) {
	var msg OrderMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return OrderMessage{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return OrderMessage{}, err
	}
	return msg, nil
}
