package cleanup

import (
	"context"
	"errors"
	"testing"
)

type fakeLister struct {
	accounts []TokenAccount
	err      error
}

func (f *fakeLister) ListTokenAccounts(ctx context.Context, wallet string) ([]TokenAccount, error) {
	return f.accounts, f.err
}

type fakeOpenChecker struct {
	open map[string]bool
}

func (f *fakeOpenChecker) IsMintOpen(mint string) bool { return f.open[mint] }

type fakeCloser struct {
	batches [][]TokenAccount
	err     error
}

func (f *fakeCloser) BurnAndClose(ctx context.Context, accounts []TokenAccount) error {
	f.batches = append(f.batches, accounts)
	return f.err
}

func TestSweepSkipsNativeMintFrozenAndOpenPositions(t *testing.T) {
	lister := &fakeLister{accounts: []TokenAccount{
		{Address: "a1", Mint: nativeMint},
		{Address: "a2", Mint: "MintFrozen", Frozen: true},
		{Address: "a3", Mint: "MintOpen"},
		{Address: "a4", Mint: "MintClosed"},
	}}
	checker := &fakeOpenChecker{open: map[string]bool{"MintOpen": true}}
	closer := &fakeCloser{}
	s := NewSweeper(lister, checker, closer, "wallet1", 10)

	s.sweep(context.Background())

	if len(closer.batches) != 1 || len(closer.batches[0]) != 1 {
		t.Fatalf("expected exactly one account closed, got %+v", closer.batches)
	}
	if closer.batches[0][0].Address != "a4" {
		t.Fatalf("expected a4 (MintClosed) to be closed, got %s", closer.batches[0][0].Address)
	}
}

func TestSweepBatchesAccountsByBatchSize(t *testing.T) {
	var accounts []TokenAccount
	for i := 0; i < 25; i++ {
		accounts = append(accounts, TokenAccount{Address: string(rune('a' + i)), Mint: string(rune('A' + i))})
	}
	lister := &fakeLister{accounts: accounts}
	checker := &fakeOpenChecker{open: map[string]bool{}}
	closer := &fakeCloser{}
	s := NewSweeper(lister, checker, closer, "wallet1", 10)

	s.sweep(context.Background())

	if len(closer.batches) != 3 {
		t.Fatalf("expected 3 batches of at most 10, got %d", len(closer.batches))
	}
	if len(closer.batches[0]) != 10 || len(closer.batches[2]) != 5 {
		t.Fatalf("expected batch sizes [10,10,5], got [%d,%d,%d]", len(closer.batches[0]), len(closer.batches[1]), len(closer.batches[2]))
	}
}

func TestSweepMintOnlyTargetsThatMint(t *testing.T) {
	lister := &fakeLister{accounts: []TokenAccount{
		{Address: "a1", Mint: "MintA"},
		{Address: "a2", Mint: "MintB"},
	}}
	checker := &fakeOpenChecker{open: map[string]bool{}}
	closer := &fakeCloser{}
	s := NewSweeper(lister, checker, closer, "wallet1", 10)

	s.SweepMint(context.Background(), "MintA")

	if len(closer.batches) != 1 || len(closer.batches[0]) != 1 || closer.batches[0][0].Mint != "MintA" {
		t.Fatalf("expected only MintA to be closed, got %+v", closer.batches)
	}
}

func TestSweepHandlesListerErrorWithoutPanicking(t *testing.T) {
	lister := &fakeLister{err: errors.New("rpc unavailable")}
	checker := &fakeOpenChecker{open: map[string]bool{}}
	closer := &fakeCloser{}
	s := NewSweeper(lister, checker, closer, "wallet1", 10)

	s.sweep(context.Background())

	if len(closer.batches) != 0 {
		t.Fatalf("expected no close calls when listing fails, got %+v", closer.batches)
	}
}

func TestSweepRechecksEligibilityBeforeClosing(t *testing.T) {
	lister := &fakeLister{accounts: []TokenAccount{{Address: "a1", Mint: "MintRace"}}}
	checker := &fakeOpenChecker{open: map[string]bool{"MintRace": true}}
	closer := &fakeCloser{}
	s := NewSweeper(lister, checker, closer, "wallet1", 10)

	s.sweep(context.Background())

	if len(closer.batches) != 0 {
		t.Fatalf("expected no close calls for a mint that opened a position, got %+v", closer.batches)
	}
}
