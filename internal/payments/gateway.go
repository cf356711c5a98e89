// Package payments holds the payment-gateway collaborator boundary. The
// adjudication engine only ever asks for a disbursement reference; the
// actual funds transfer is an at-least-once-retryable downstream concern.
package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	id "medisure/pkg/domain"
)

// Gateway initiates a disbursement and returns the reference the engine
// records when finalizing a claim as paid.
type Gateway interface {
	Disburse(ctx context.Context, claimID id.ClaimID, amount int64, payee id.InstitutionID) (string, error)
}

// FakeGateway issues synthetic references for the memory storage mode and
// tests. It remembers issued references so idempotent retries can be
// asserted against.
type FakeGateway struct {
	mu     sync.Mutex
	issued map[id.ClaimID]string
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{issued: make(map[id.ClaimID]string)}
}

// Disburse returns a stable reference per claim: retrying a disbursement for
// the same claim yields the reference already issued.
func (g *FakeGateway) Disburse(_ context.Context, claimID id.ClaimID, amount int64, _ id.InstitutionID) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("disbursement amount must be positive, got %d", amount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if ref, ok := g.issued[claimID]; ok {
		return ref, nil
	}
	ref := "PAY-" + strings.ToUpper(uuid.NewString()[:8])
	g.issued[claimID] = ref
	return ref, nil
}
