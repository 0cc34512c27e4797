// Package accountnumber issues 10-digit account numbers. The leading digit is
// the owner's id mod 10; the remaining nine are the head of a random
// permutation of 0-9, so no digit repeats within the suffix.
package accountnumber

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/josh-kwaku/account-ledger/internal/domain"
)

const MaxAttempts = 1000

type accountLookup interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
}

type Generator struct {
	accounts accountLookup

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(accounts accountLookup, src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{accounts: accounts, rnd: rand.New(src)}
}

func (g *Generator) Generate(ctx context.Context, userID int64) (string, error) {
	for range MaxAttempts {
		candidate := g.candidate(userID)

		_, err := g.accounts.GetByAccountNumber(ctx, candidate)
		if errors.Is(err, domain.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("Generate: %w", err)
		}
	}
	return "", fmt.Errorf("Generate: %d attempts: %w", MaxAttempts, domain.ErrAccountNumberExhausted)
}

func (g *Generator) candidate(userID int64) string {
	g.mu.Lock()
	perm := g.rnd.Perm(10)
	g.mu.Unlock()

	lead := userID % 10
	if lead < 0 {
		lead = -lead
	}

	var sb strings.Builder
	sb.Grow(domain.AccountNumberLength)
	sb.WriteString(strconv.FormatInt(lead, 10))
	for _, d := range perm[:domain.AccountNumberLength-1] {
		sb.WriteByte('0' + byte(d))
	}
	return sb.String()
}
