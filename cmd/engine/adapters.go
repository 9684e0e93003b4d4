package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/internal/cache"
	"github.com/sniperbot/engine/internal/cleanup"
	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/internal/execution"
	"github.com/sniperbot/engine/internal/rpcpool"
	"github.com/sniperbot/engine/pkg/models"
)

// newWalletSigner decodes wallet.secret (hex-encoded, per
// execution.WalletSigner.PublicKey's own hex convention) into the raw
// 64-byte ed25519 key execution.NewWalletSigner expects.
func newWalletSigner(secretHex string) (*execution.WalletSigner, error) {
	raw, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("wallet secret is not valid hex: %w", err)
	}
	return execution.NewWalletSigner(raw)
}

// wsLogSource satisfies detector.LogSource over a real logsSubscribe
// WebSocket feed. The dial-retry-read loop is grounded on the
// sniperterminal predator engine's PredatorWorker.Run: dial, stream raw
// frames to the caller, and on any read or write error drop the connection
// and redial at once rather than propagating the error up; only a failed
// dial waits 5s before the next attempt.
type wsLogSource struct {
	endpointsByTag map[string][]string
}

func newWSLogSource(cfg *config.Config) *wsLogSource {
	src := &wsLogSource{endpointsByTag: make(map[string][]string)}
	for _, ep := range cfg.RPC.Endpoints {
		for _, tag := range ep.Tags {
			if tag == "ws" {
				src.endpointsByTag["ws"] = append(src.endpointsByTag["ws"], ep.URL)
			}
		}
	}
	return src
}

func (w *wsLogSource) dialURL() (string, error) {
	urls := w.endpointsByTag["ws"]
	if len(urls) == 0 {
		return "", fmt.Errorf("wsLogSource: no endpoint tagged ws configured")
	}
	return urls[0], nil
}

// Subscribe dials a logsSubscribe WebSocket for source and streams every raw
// notification onto the returned channel until ctx is cancelled.
func (w *wsLogSource) Subscribe(ctx context.Context, source models.AMMSource) (<-chan json.RawMessage, error) {
	url, err := w.dialURL()
	if err != nil {
		return nil, err
	}
	ch := make(chan json.RawMessage, 64)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				log.Printf("[engine] logsSubscribe dial %s (%s): %v", url, source, err)
				time.Sleep(5 * time.Second)
				continue
			}
			sub, _ := json.Marshal(map[string]any{
				"jsonrpc": "2.0", "id": 1, "method": "logsSubscribe",
				"params": []any{map[string]any{"mentions": []string{string(source)}}, map[string]any{"commitment": "processed"}},
			})
			if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
				conn.Close()
				continue
			}
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					conn.Close()
					break
				}
				select {
				case ch <- json.RawMessage(msg):
				case <-ctx.Done():
					conn.Close()
					return
				}
			}
		}
	}()
	return ch, nil
}

// reservesAdapter satisfies position.ReservesReader (and db.PriceObserver)
// by delegating straight to amm.ReadReserves over the shared pool.
type reservesAdapter struct {
	pool *rpcpool.Pool
}

func (r *reservesAdapter) Read(ctx context.Context, source models.AMMSource, poolAddress string) (amm.Reserves, error) {
	return amm.ReadReserves(ctx, source, r.pool, poolAddress)
}

// aggregatorClient satisfies execution.AggregatorClient against an external
// swap-quote aggregator reachable over plain HTTP. No aggregator SDK exists
// anywhere in the retained stack, so this stays on net/http by necessity,
// mirroring internal/security.Checker's own quote() HTTP-JSON round trip.
type aggregatorClient struct {
	httpClient *http.Client
	baseURL    string
}

func newAggregatorClient(baseURL string) *aggregatorClient {
	return &aggregatorClient{httpClient: &http.Client{Timeout: 5 * time.Second}, baseURL: baseURL}
}

type aggregatorQuoteResponse struct {
	ProgramID    string `json:"programId"`
	InstructionData []byte `json:"instructionData"`
	Accounts     []string `json:"accounts"`
	OutAmount    int64  `json:"outAmount"`
}

func (a *aggregatorClient) Quote(ctx context.Context, inMint, outMint string, amountIn int64, slippageBps int) (amm.SwapInstruction, int64, error) {
	body, _ := json.Marshal(map[string]any{
		"inputMint": inMint, "outputMint": outMint, "amountIn": amountIn, "slippageBps": slippageBps,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/quote", bytes.NewReader(body))
	if err != nil {
		return amm.SwapInstruction{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return amm.SwapInstruction{}, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return amm.SwapInstruction{}, 0, fmt.Errorf("aggregatorClient: quote status %d", resp.StatusCode)
	}
	var q aggregatorQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return amm.SwapInstruction{}, 0, err
	}
	ix := amm.SwapInstruction{ProgramID: q.ProgramID, Data: q.InstructionData, Accounts: q.Accounts}
	return ix, q.OutAmount, nil
}

// trendingFeedClient satisfies behavior.TrendingFeed against an external
// trending-token feed reachable over plain HTTP, the same net/http-by-
// necessity shape as aggregatorClient above.
type trendingFeedClient struct {
	httpClient *http.Client
	baseURL    string
}

func newTrendingFeedClient(baseURL string) *trendingFeedClient {
	return &trendingFeedClient{httpClient: &http.Client{Timeout: 5 * time.Second}, baseURL: baseURL}
}

func (t *trendingFeedClient) TrendingTokens(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/v1/trending", nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trendingFeedClient: status %d", resp.StatusCode)
	}
	var tokens struct {
		Mints []string `json:"mints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, err
	}
	return tokens.Mints, nil
}

// accountRPC satisfies cleanup.AccountLister and cleanup.AccountCloser over
// the shared pool's primary-tagged endpoints, raw JSON-RPC the same way
// rpcpool's own SendPrimary/BroadcastSend are, since no SPL token SDK is
// present in the retained stack.
type accountRPC struct {
	pool   *rpcpool.Pool
	signer accountSigner
}

type accountSigner interface {
	PublicKey() string
}

func newAccountRPC(pool *rpcpool.Pool, signer accountSigner) *accountRPC {
	return &accountRPC{pool: pool, signer: signer}
}

type tokenAccountInfo struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					Mint        string `json:"mint"`
					TokenAmount struct {
						Amount string `json:"amount"`
					} `json:"tokenAmount"`
					State string `json:"state"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

func (a *accountRPC) ListTokenAccounts(ctx context.Context, wallet string) ([]cleanup.TokenAccount, error) {
	params, _ := json.Marshal(struct {
		Owner string `json:"owner"`
	}{wallet})
	raw, err := a.pool.WithAnalysisRetry(ctx, "getTokenAccountsByOwner", params)
	if err != nil {
		return nil, err
	}
	var parsed []tokenAccountInfo
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	out := make([]cleanup.TokenAccount, 0, len(parsed))
	for _, p := range parsed {
		var amount int64
		fmt.Sscanf(p.Account.Data.Parsed.Info.TokenAmount.Amount, "%d", &amount)
		out = append(out, cleanup.TokenAccount{
			Address: p.Pubkey,
			Mint:    p.Account.Data.Parsed.Info.Mint,
			Balance: amount,
			Frozen:  strings.EqualFold(p.Account.Data.Parsed.Info.State, "frozen"),
		})
	}
	return out, nil
}

// BurnAndClose submits one burn-then-close transaction per account. Every
// account is attempted independently so one failure does not block the
// rest of the batch.
func (a *accountRPC) BurnAndClose(ctx context.Context, accounts []cleanup.TokenAccount) error {
	var firstErr error
	for _, acct := range accounts {
		params, _ := json.Marshal(struct {
			Owner   string `json:"owner"`
			Account string `json:"account"`
			Mint    string `json:"mint"`
			Amount  int64  `json:"amount"`
		}{a.signer.PublicKey(), acct.Address, acct.Mint, acct.Balance})
		_, err := a.pool.SendPrimary(ctx, "burnAndCloseAccount", params)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// health wraps the pool's primary-endpoint health and the wallet balance
// cache's staleness into telemetry.HealthReporter.
type health struct {
	pool    *rpcpool.Pool
	balance *cache.BalanceCache
}

func (h *health) Healthy() (bool, string) {
	healthy, total := h.pool.HealthyCount("primary")
	if healthy == 0 {
		return false, fmt.Sprintf("no healthy primary endpoint (0/%d)", total)
	}
	if _, stale := h.balance.Balance(); stale {
		return false, "wallet balance cache is stale"
	}
	return true, fmt.Sprintf("%d/%d primary endpoints healthy", healthy, total)
}
