package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/internal/rpcpool"
)

type fakeSigner struct{ pub string }

func (f fakeSigner) PublicKey() string { return f.pub }

func TestListTokenAccountsParsesFrozenAndBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := `[
			{"pubkey":"acct1","account":{"data":{"parsed":{"info":{"mint":"MintA","tokenAmount":{"amount":"1500"},"state":"initialized"}}}}},
			{"pubkey":"acct2","account":{"data":{"parsed":{"info":{"mint":"MintB","tokenAmount":{"amount":"0"},"state":"frozen"}}}}}
		]`
		resp, _ := json.Marshal(map[string]json.RawMessage{"result": json.RawMessage(result)})
		w.Write(resp)
	}))
	defer srv.Close()

	pool := rpcpool.New([]config.Endpoint{{URL: srv.URL, Tags: []string{"analysis"}, QPS: 100, Burst: 10}})
	defer pool.Close()

	rpc := newAccountRPC(pool, fakeSigner{pub: "wallet1"})
	accounts, err := rpc.ListTokenAccounts(context.Background(), "wallet1")
	if err != nil {
		t.Fatalf("list token accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Balance != 1500 || accounts[0].Frozen {
		t.Fatalf("expected acct1 balance=1500 unfrozen, got %+v", accounts[0])
	}
	if !accounts[1].Frozen {
		t.Fatalf("expected acct2 to be reported frozen, got %+v", accounts[1])
	}
}

func TestAggregatorClientQuoteParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" {
			t.Errorf("expected POST to /v1/quote, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"programId":       "prog1",
			"instructionData": []byte{1, 2, 3},
			"accounts":        []string{"acctA", "acctB"},
			"outAmount":       4200,
		})
	}))
	defer srv.Close()

	client := newAggregatorClient(srv.URL)
	ix, out, err := client.Quote(context.Background(), "MintIn", "MintOut", 1000, 9500)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if out != 4200 || ix.ProgramID != "prog1" || len(ix.Accounts) != 2 {
		t.Fatalf("unexpected quote result: out=%d ix=%+v", out, ix)
	}
}

func TestAggregatorClientQuoteSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newAggregatorClient(srv.URL)
	_, _, err := client.Quote(context.Background(), "MintIn", "MintOut", 1000, 9500)
	if err == nil {
		t.Fatal("expected an error on a non-200 aggregator response")
	}
}

func TestTrendingFeedClientParsesMints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/trending" {
			t.Errorf("expected GET to /v1/trending, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"mints": []string{"MintA", "MintB"}})
	}))
	defer srv.Close()

	client := newTrendingFeedClient(srv.URL)
	tokens, err := client.TrendingTokens(context.Background())
	if err != nil {
		t.Fatalf("trending tokens: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "MintA" || tokens[1] != "MintB" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
}

func TestHealthReportsUnhealthyWithNoPrimaryEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pool := rpcpool.New([]config.Endpoint{{URL: srv.URL, Tags: []string{"analysis"}, QPS: 100, Burst: 10}})
	defer pool.Close()

	h := &health{pool: pool}
	healthy, detail := h.Healthy()
	if healthy {
		t.Fatalf("expected unhealthy with no primary-tagged endpoint, got detail=%s", detail)
	}
}
