package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/redis"
)

const (
	// ChannelPrefix is the Pub/Sub channel per game: clickarena:game:<id>.
	ChannelPrefix = "clickarena:game:"

	// ClickStream is the capped catch-up stream of all updates.
	ClickStream = "clickarena:clicks"
)

// RedisNotifier pushes game updates to external observers over Redis.
// Per-game ordering holds because the engine publishes inside the game's
// critical section and go-redis pipelines commands per connection in order.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) PublishGameUpdate(ctx context.Context, u GameUpdate) {
	payload, err := json.Marshal(u)
	if err != nil {
		n.logger.Warn("failed to encode game update", zap.Error(err))
		return
	}

	n.client.Publish(ctx, ChannelPrefix+u.GameID, payload)
	n.client.XAdd(ctx, ClickStream, map[string]interface{}{
		"game_id":      u.GameID,
		"status":       string(u.Status),
		"total_clicks": u.TotalClicks,
		"end_time":     u.EndTime.UnixMilli(),
		"sequence":     u.Sequence,
		"username":     u.Username,
		"item_name":    u.ItemName,
	})
}
