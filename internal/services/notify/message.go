package notify

import (
	"fmt"
	"math"
	"time"

	"CoinTrend/internal/domain/models"
)

// Message is the channel independent rendering of an event.
type Message struct {
	EventID     string    `json:"eventId"`
	Symbol      string    `json:"symbol"`
	Direction   string    `json:"direction"` // up or down
	Percentage  int       `json:"percentage"`
	Probability float64   `json:"probability"`
	FiredAt     time.Time `json:"firedAt"`
}

func NewMessage(e *models.SymbolEvent) Message {
	dir := "down"
	if e.Rising() {
		dir = "up"
	}
	return Message{
		EventID:     e.ID,
		Symbol:      e.Symbol.String(),
		Direction:   dir,
		Percentage:  int(math.Round(math.Abs(e.Probability) * 100)),
		Probability: e.Probability,
		FiredAt:     e.FiredAt,
	}
}

func (m Message) Title() string {
	if m.Direction == "up" {
		return fmt.Sprintf("↗ %s's value will rise!", m.Symbol)
	}
	return fmt.Sprintf("↘ %s's value will drop!", m.Symbol)
}

func (m Message) Body() string {
	return fmt.Sprintf("I'm %d%% sure %s's value is going to go %s...", m.Percentage, m.Symbol, m.Direction)
}

// Greeting renders the personal text used by email and Telegram.
func (m Message) Greeting(username string) string {
	return fmt.Sprintf("Hi %s,\n\n%s\n\nEvent: %s", username, m.Body(), m.EventID)
}
