package notify

import (
	"context"
	"strconv"
	"time"

	"mining_webapp/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const sessionChannel = "mining:session_changed"

// Notifier is the out-of-band session-change feed. Any writer that touches a
// session row behind the reconciler's back (admin tools, support scripts)
// publishes the user id here; subscribers answer with a fresh load. It is an
// event source independent of the periodic sync cadence.
type Notifier struct {
	client *redis.Client
}

// New connects to Redis. An empty addr disables the feed; callers get a nil
// Notifier and nil-safe methods.
func New(addr, password string, db int) *Notifier {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("session change feed disabled, redis unreachable", "error", err)
		return nil
	}
	return &Notifier{client: client}
}

// PublishSessionChanged announces an out-of-band change to a user's session.
func (n *Notifier) PublishSessionChanged(ctx context.Context, userID int64) error {
	if n == nil {
		return nil
	}
	return n.client.Publish(ctx, sessionChannel, strconv.FormatInt(userID, 10)).Err()
}

// Subscribe starts a goroutine delivering change notifications until ctx is
// cancelled. Malformed payloads are dropped.
func (n *Notifier) Subscribe(ctx context.Context, onChange func(userID int64)) {
	if n == nil {
		return
	}
	sub := n.client.Subscribe(ctx, sessionChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				userID, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					logger.Warn("bad session change payload", "payload", msg.Payload)
					continue
				}
				onChange(userID)
			}
		}
	}()
}

func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.client.Close()
}
