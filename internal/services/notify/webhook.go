package notify

import (
	"context"
	"fmt"

	"CoinTrend/internal/domain/models"
	xhttp "CoinTrend/pkg/http"
)

// WebhookNotifier POSTs every event to a fixed URL.
type WebhookNotifier struct {
	client  *xhttp.Client
	url     string
	headers map[string]string
	mode    models.MatchMode
}

func NewWebhookNotifier(client *xhttp.Client, url string, headers map[string]string, mode models.MatchMode) *WebhookNotifier {
	return &WebhookNotifier{client: client, url: url, headers: headers, mode: mode}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, e *models.SymbolEvent) error {
	body := eventRecord{
		Message:     NewMessage(e),
		BaseAsset:   e.Symbol.Base.Name,
		QuoteAsset:  e.Symbol.Quote.Name,
		Subscribers: e.Subscribers(n.mode),
	}
	if err := n.client.PostJSON(ctx, n.url, n.headers, body, nil); err != nil {
		return fmt.Errorf("webhook %s: %w", n.url, err)
	}
	return nil
}
