package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quenchlabs/beverage-api/internal/domain"
	"github.com/quenchlabs/beverage-api/internal/messaging"
	"github.com/quenchlabs/beverage-api/internal/realtime"
)

// Producer publishes an event to a topic keyed by order id.
type Producer interface {
	Publish(ctx context.Context, key string, event any) error
}

// Notifier fans order events out to interested parties. With Kafka
// configured, status changes go through the broker so every API replica's
// hub hears them (see Bridge); without it they go straight to the local hub.
type Notifier struct {
	created Producer
	status  Producer
	hub     *realtime.Hub
	logger  *slog.Logger
}

func NewNotifier(created, status Producer, hub *realtime.Hub, logger *slog.Logger) *Notifier {
	return &Notifier{
		created: created,
		status:  status,
		hub:     hub,
		logger:  logger,
	}
}

// OrderCreated announces a freshly placed order to downstream consumers.
// Failures are logged, not returned: the order is already committed and
// notification is best-effort.
func (n *Notifier) OrderCreated(ctx context.Context, order *domain.Order) {
	if n.created == nil {
		return
	}

	event := domain.OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Items:       order.Items,
		TotalAmount: order.TotalAmount,
		Timestamp:   order.CreatedAt,
	}
	if err := n.created.Publish(ctx, order.ID, event); err != nil {
		n.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
	}
}

// StatusChanged announces an order status transition.
func (n *Notifier) StatusChanged(ctx context.Context, orderID string, status domain.OrderStatus) {
	if n.status != nil {
		event := domain.OrderStatusEvent{
			OrderID:   orderID,
			Status:    status,
			Timestamp: time.Now().UTC(),
		}
		if err := n.status.Publish(ctx, orderID, event); err != nil {
			n.logger.Error("failed to publish order status event", "error", err, "order_id", orderID)
		}
		return
	}

	if n.hub != nil {
		n.hub.PublishStatus(orderID, status)
	}
}

// Consumer delivers messages from a topic to a handler.
type Consumer interface {
	Consume(ctx context.Context, handler messaging.Handler) error
}

// Bridge forwards order.status events from the broker to the local hub.
// Each API instance runs one bridge with a unique consumer group, so status
// changes reach the clients of every replica.
func (n *Notifier) Bridge(ctx context.Context, consumer Consumer) error {
	if n.hub == nil {
		return fmt.Errorf("bridge requires a hub")
	}

	return consumer.Consume(ctx, func(ctx context.Context, payload []byte) error {
		var event domain.OrderStatusEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			n.logger.Error("failed to decode order status event", "error", err)
			return nil
		}

		n.hub.PublishStatus(event.OrderID, event.Status)
		n.logger.Info("order status forwarded to trackers", "order_id", event.OrderID, "status", event.Status)
		return nil
	})
}

var _ Producer = (*messaging.Producer)(nil)
var _ Consumer = (*messaging.Consumer)(nil)
