package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimulatedGateway stands in for a real acquirer in dev mode. Tokens starting
// with "DECLINE" are rejected, which is enough to exercise both branches from
// a terminal.
type SimulatedGateway struct {
	name string

	mu     sync.Mutex
	voided []string
}

func NewSimulatedGateway(name string) *SimulatedGateway {
	return &SimulatedGateway{name: name}
}

func (g *SimulatedGateway) Charge(ctx context.Context, _ decimal.Decimal, details GatewayDetails) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.HasPrefix(strings.ToUpper(details.Token), "DECLINE") {
		return "", ErrPaymentDeclined
	}
	return g.name + "-" + uuid.NewString(), nil
}

func (g *SimulatedGateway) Void(ctx context.Context, reference string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voided = append(g.voided, reference)
	return nil
}

// Voided lists references voided so far, oldest first.
func (g *SimulatedGateway) Voided() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.voided))
	copy(out, g.voided)
	return out
}
