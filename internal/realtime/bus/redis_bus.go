package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/clipreview-backend/internal/config"
	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

const defaultChannel = "clipreview:stage-events"

// channelFor scopes events to one run so other consumers can subscribe to a
// single run's channel directly.
func channelFor(prefix string, runID uuid.UUID) string {
	return prefix + ":" + runID.String()
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(ctx context.Context, log *logger.Logger, cfg config.RedisConfig) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = defaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "RedisStageBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, ev review.StageEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis stage bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelFor(b.channel, ev.RunID), raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onEvent func(ev review.StageEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis stage bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.PSubscribe(ctx, b.channel+":*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeStageEvent(m.Channel, m.Payload)
				if err != nil {
					b.log.Warn("dropping stage event", "channel", m.Channel, "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// decodeStageEvent parses a payload and checks it belongs to the run named
// by its channel.
func decodeStageEvent(channel, payload string) (review.StageEvent, error) {
	var ev review.StageEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("decode: %w", err)
	}
	if !strings.HasSuffix(channel, ":"+ev.RunID.String()) {
		return ev, fmt.Errorf("run %s published on %s", ev.RunID, channel)
	}
	return ev, nil
}
