package security

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sniperbot/engine/pkg/models"
)

// fakeRPC answers every method with a canned response, or an error for
// methods listed in failMethods.
type fakeRPC struct {
	responses   map[string]json.RawMessage
	failMethods map[string]bool
}

func (f *fakeRPC) SendPrimary(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error) {
	return f.respond(method)
}

func (f *fakeRPC) WithAnalysisRetry(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error) {
	return f.respond(method)
}

func (f *fakeRPC) respond(method string) (json.RawMessage, error) {
	if f.failMethods[method] {
		return nil, errFake
	}
	if resp, ok := f.responses[method]; ok {
		return resp, nil
	}
	return json.RawMessage(`{}`), nil
}

var errFake = &fakeError{"fake transport error"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }

func candidatePool() models.DetectedPool {
	return models.DetectedPool{
		Source:      models.SourcePumpSwap,
		PoolAddress: "Pool1",
		BaseMint:    "Mint1",
		QuoteMint:   "So11111111111111111111111111111111111111112",
	}
}

func TestCheckAuthoritiesRevoked(t *testing.T) {
	raw := json.RawMessage(`{"mintAuthority":null,"freezeAuthority":null}`)
	fake := &fakeRPC{responses: map[string]json.RawMessage{"getAccountInfo": raw}}
	c := NewChecker(fake, "")

	var out models.SecurityChecks
	c.checkAuthorities(context.Background(), candidatePool(), &out)

	if !out.MintAuthorityRevoked || !out.FreezeAuthorityRevoked {
		t.Fatalf("expected both authorities revoked, got %+v", out)
	}
	if out.MintAuthorityUnknown || out.FreezeAuthorityUnknown {
		t.Fatalf("did not expect unknown flags set, got %+v", out)
	}
}

func TestCheckAuthoritiesPresent(t *testing.T) {
	raw := json.RawMessage(`{"mintAuthority":"Wallet1","freezeAuthority":"Wallet1"}`)
	fake := &fakeRPC{responses: map[string]json.RawMessage{"getAccountInfo": raw}}
	c := NewChecker(fake, "")

	var out models.SecurityChecks
	c.checkAuthorities(context.Background(), candidatePool(), &out)

	if out.MintAuthorityRevoked || out.FreezeAuthorityRevoked {
		t.Fatalf("expected both authorities present (not revoked), got %+v", out)
	}
}

func TestCheckAuthoritiesUnknownOnTransportFailure(t *testing.T) {
	fake := &fakeRPC{failMethods: map[string]bool{"getAccountInfo": true}}
	c := NewChecker(fake, "")

	var out models.SecurityChecks
	c.checkAuthorities(context.Background(), candidatePool(), &out)

	if !out.MintAuthorityUnknown || !out.FreezeAuthorityUnknown {
		t.Fatalf("expected unknown flags on transport failure, got %+v", out)
	}
}

func TestCheckHolders(t *testing.T) {
	raw := json.RawMessage(`{"holders":[{"owner":"W1","amount":600},{"owner":"W2","amount":400}],"totalSupply":1000,"partial":false}`)
	fake := &fakeRPC{responses: map[string]json.RawMessage{"getTokenLargestAccounts": raw}}
	c := NewChecker(fake, "")

	var out models.SecurityChecks
	c.checkHolders(context.Background(), candidatePool(), &out)

	if out.HolderCount != 2 {
		t.Fatalf("expected holder count 2, got %d", out.HolderCount)
	}
	if out.TopHolderPct != 60 {
		t.Fatalf("expected top holder pct 60, got %v", out.TopHolderPct)
	}
	if out.HolderDataPartial {
		t.Fatal("did not expect partial flag set")
	}
}

func TestCheckReputationSkippedWhenNoURL(t *testing.T) {
	fake := &fakeRPC{}
	c := NewChecker(fake, "")

	var out models.SecurityChecks
	c.checkReputation(context.Background(), candidatePool(), &out)

	if out.RugcheckScore != nil {
		t.Fatal("expected nil (undefined) score when no reputation URL configured")
	}
}

func TestRunProducesAllFiveChecksConcurrently(t *testing.T) {
	fake := &fakeRPC{responses: map[string]json.RawMessage{
		"getAccountInfo":          json.RawMessage(`{"mintAuthority":null,"freezeAuthority":null}`),
		"getTokenLargestAccounts": json.RawMessage(`{"holders":[{"owner":"W1","amount":100}],"totalSupply":1000,"partial":false}`),
	}}
	c := NewChecker(fake, "")

	out := c.Run(context.Background(), candidatePool())
	if !out.MintAuthorityRevoked {
		t.Fatal("expected authorities to be resolved by Run")
	}
	if out.HolderCount != 1 {
		t.Fatalf("expected holder check to be resolved by Run, got %+v", out)
	}
}
