package notify

import (
	"context"
	"errors"
	"fmt"

	"CoinTrend/internal/domain/models"
)

// ChannelPublisher publishes to a pub/sub channel, e.g. Redis PUBLISH.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// PushPayload is what device gateways subscribed to push:<userID> receive.
type PushPayload struct {
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Message Message `json:"data"`
}

// PushNotifier hands per-user push payloads to device gateways over pub/sub.
type PushNotifier struct {
	pub      ChannelPublisher
	audience *Audience
}

func NewPushNotifier(pub ChannelPublisher, audience *Audience) *PushNotifier {
	return &PushNotifier{pub: pub, audience: audience}
}

func (n *PushNotifier) Name() string { return "push" }

// PushChannel is the channel of one user's devices.
func PushChannel(userID string) string { return "push:" + userID }

func (n *PushNotifier) Notify(ctx context.Context, e *models.SymbolEvent) error {
	users, err := n.audience.Resolve(ctx, n.Name(), e)
	if err != nil {
		return err
	}
	msg := NewMessage(e)
	payload := PushPayload{Title: msg.Title(), Body: msg.Body(), Message: msg}

	var errs []error
	for _, u := range users {
		if err := n.pub.Publish(ctx, PushChannel(u.ID), payload); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
			continue
		}
		n.audience.Delivered(ctx, u)
	}
	return errors.Join(errs...)
}
