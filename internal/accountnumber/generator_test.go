package accountnumber

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/account-ledger/internal/domain"
)

type stubLookup struct {
	taken   map[string]bool
	takeAll bool
	err     error
	calls   int
}

func (s *stubLookup) GetByAccountNumber(_ context.Context, n string) (*domain.Account, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.takeAll || s.taken[n] {
		return &domain.Account{AccountNumber: n}, nil
	}
	return nil, domain.ErrNotFound
}

func TestGenerate_Shape(t *testing.T) {
	lookup := &stubLookup{}
	g := NewGenerator(lookup, rand.NewPCG(1, 2))

	for _, userID := range []int64{0, 1, 7, 12, 15, 99, 1234567} {
		n, err := g.Generate(context.Background(), userID)
		require.NoError(t, err)

		assert.Len(t, n, domain.AccountNumberLength)
		assert.Equal(t, byte('0'+userID%10), n[0], "leading digit for user %d", userID)

		seen := map[rune]bool{}
		for _, r := range n[1:] {
			assert.True(t, r >= '0' && r <= '9')
			assert.False(t, seen[r], "suffix digit %c repeated in %s", r, n)
			seen[r] = true
		}
	}
}

func TestGenerate_DeterministicWithSeed(t *testing.T) {
	a := NewGenerator(&stubLookup{}, rand.NewPCG(42, 42))
	b := NewGenerator(&stubLookup{}, rand.NewPCG(42, 42))

	for range 5 {
		na, err := a.Generate(context.Background(), 3)
		require.NoError(t, err)
		nb, err := b.Generate(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, na, nb)
	}
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	// Replay the same seed to learn the first two candidates, then mark the
	// first as taken.
	probe := NewGenerator(&stubLookup{}, rand.NewPCG(7, 7))
	first := probe.candidate(5)
	second := probe.candidate(5)
	require.NotEqual(t, first, second)

	lookup := &stubLookup{taken: map[string]bool{first: true}}
	g := NewGenerator(lookup, rand.NewPCG(7, 7))

	n, err := g.Generate(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, second, n)
	assert.Equal(t, 2, lookup.calls)
}

func TestGenerate_Exhausted(t *testing.T) {
	lookup := &stubLookup{takeAll: true}
	g := NewGenerator(lookup, rand.NewPCG(1, 1))

	_, err := g.Generate(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrAccountNumberExhausted)
	assert.Equal(t, MaxAttempts, lookup.calls)
}

func TestGenerate_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	lookup := &stubLookup{err: storeErr}
	g := NewGenerator(lookup, rand.NewPCG(1, 1))

	_, err := g.Generate(context.Background(), 1)
	require.ErrorIs(t, err, storeErr)
	assert.False(t, domain.IsCoded(err))
	assert.Equal(t, 1, lookup.calls)
}
