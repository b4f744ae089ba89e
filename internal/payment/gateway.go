// Package payment defines the settlement boundary. The marketplace never
// talks to a real processor; MockGateway stands in for one behind the same
// interface the checkout engine would use for a real integration.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCardDeclined      = errors.New("card declined")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrGatewayUnavail    = errors.New("payment gateway unavailable")
)

// Instrument carries the decrypted card data handed to the gateway at
// settlement time. It exists only in memory for the duration of a charge.
type Instrument struct {
	CardNumber     string
	CardholderName string
	ExpiryMonth    int
	ExpiryYear     int
	Descriptor     string
}

// Gateway authorizes movement of funds for an instrument and amount,
// returning a settlement transaction id.
type Gateway interface {
	Charge(ctx context.Context, instr Instrument, amount decimal.Decimal) (string, error)
}

// MockGateway simulates settlement: a small artificial delay, two
// deterministic decline suffixes, and an optional random failure rate for
// chaos runs. Deterministic when FailRate is zero.
type MockGateway struct {
	Latency  time.Duration
	FailRate float64
}

func NewMock(latency time.Duration, failRate float64) *MockGateway {
	return &MockGateway{Latency: latency, FailRate: failRate}
}

func (g *MockGateway) Charge(ctx context.Context, instr Instrument, amount decimal.Decimal) (string, error) {
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("charge amount must be positive, got %s", amount)
	}

	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	switch {
	case strings.HasSuffix(instr.CardNumber, "0002"):
		return "", ErrCardDeclined
	case strings.HasSuffix(instr.CardNumber, "0119"):
		return "", ErrInsufficientFunds
	}

	if g.FailRate > 0 && rand.Float64() < g.FailRate {
		return "", ErrGatewayUnavail
	}

	return "txn_" + uuid.NewString(), nil
}
