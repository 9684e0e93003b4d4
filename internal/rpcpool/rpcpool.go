// Package rpcpool implements the N-endpoint RPC/WebSocket pool. The
// JSON-RPC-over-HTTPS transport is modeled on a raw jsonRPCRequest/
// jsonRPCResponse pattern seen in btcd-adjacent RPC clients, which drop to a
// bare HTTP POST + json.RawMessage envelope whenever the SDK (btcd's
// rpcclient) doesn't model a call; here every call takes that route, since
// no SDK for this chain is available in the retained stack.
package rpcpool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sniperbot/engine/internal/config"
)

// ErrNoHealthyEndpoint is returned when every endpoint carrying a requested
// tag is currently unhealthy.
var ErrNoHealthyEndpoint = errors.New("rpcpool: no healthy endpoint for tag")

// ErrOnChainFailure wraps a non-retryable status payload returned by Confirm.
type ErrOnChainFailure struct{ Detail string }

func (e *ErrOnChainFailure) Error() string { return "rpcpool: on-chain failure: " + e.Detail }

const healthPingInterval = 30 * time.Second

// Pool is the redundant RPC/WebSocket endpoint pool shared by every other
// component. All mutation goes through endpoint's own atomics; the endpoint
// slice is built once at construction and never resized at runtime, so it is
// read without a lock.
type Pool struct {
	endpoints []*endpoint
	client    *http.Client

	rrMu  sync.Mutex
	rrIdx map[string]int // round-robin cursor per tag

	stopPing chan struct{}
}

// New builds a Pool from the configured endpoint list (rpc.endpoints[]).
func New(cfgEndpoints []config.Endpoint) *Pool {
	p := &Pool{
		client:   &http.Client{Timeout: 15 * time.Second},
		rrIdx:    make(map[string]int),
		stopPing: make(chan struct{}),
	}
	for _, ce := range cfgEndpoints {
		p.endpoints = append(p.endpoints, newEndpoint(ce.URL, ce.Tags, ce.QPS, ce.Burst))
	}
	go p.healthPingLoop()
	return p
}

// Close stops the background health-ping loop.
func (p *Pool) Close() { close(p.stopPing) }

// HealthyCount reports how many of the pool's endpoints carrying tag are
// currently healthy, for surfacing on the telemetry healthz route.
func (p *Pool) HealthyCount(tag string) (healthy, total int) {
	for _, e := range p.byTag(tag) {
		total++
		if e.isHealthy() {
			healthy++
		}
	}
	return healthy, total
}

func (p *Pool) byTag(tag string) []*endpoint {
	var out []*endpoint
	for _, e := range p.endpoints {
		if e.hasTag(tag) {
			out = append(out, e)
		}
	}
	return out
}

// pickLRUHealthy returns the least-recently-used healthy endpoint among tag,
// or nil when none is healthy. Endpoints with equal lastUse resolve to the
// one listed first; no round-robin cursor is consulted.
func (p *Pool) pickLRUHealthy(tag string) *endpoint {
	candidates := p.byTag(tag)
	var best *endpoint
	for _, e := range candidates {
		if !e.isHealthy() {
			continue
		}
		if best == nil || e.lastUse().Before(best.lastUse()) {
			best = e
		}
	}
	return best
}

type jsonRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int               `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

// call performs one JSON-RPC-over-HTTPS round trip against a specific
// endpoint, respecting its token bucket.
func (p *Pool) call(ctx context.Context, e *endpoint, method string, params []json.RawMessage) (json.RawMessage, error) {
	if ok, wait := e.bucket.allow(); !ok {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("rpcpool: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rpcpool: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("rpcpool: transport: %w", err)
	}
	defer resp.Body.Close()
	e.touch()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		e.recordFailure()
		return nil, fmt.Errorf("rpcpool: endpoint %s returned status %d", e.url, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("rpcpool: read body: %w", err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("rpcpool: decode envelope: %w", err)
	}
	if rpcResp.Error != nil {
		// A well-formed RPC error is not a transport failure; the endpoint
		// itself answered fine.
		e.recordSuccess()
		return nil, fmt.Errorf("rpcpool: rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	e.recordSuccess()
	return rpcResp.Result, nil
}

// SendPrimary invokes method against the primary-tagged endpoint.
func (p *Pool) SendPrimary(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error) {
	primaries := p.byTag("primary")
	if len(primaries) == 0 {
		return nil, ErrNoHealthyEndpoint
	}
	e := primaries[0]
	for _, cand := range primaries {
		if cand.isHealthy() {
			e = cand
			break
		}
	}
	return p.call(ctx, e, method, params)
}

// WithAnalysisRetry picks the LRU healthy analysis endpoint, invokes method,
// and on transport/429 failure rotates to the next healthy candidate until
// ctx's deadline fires.
func (p *Pool) WithAnalysisRetry(ctx context.Context, method string, params ...json.RawMessage) (json.RawMessage, error) {
	tried := make(map[string]bool)
	for {
		e := p.pickLRUHealthy("analysis")
		if e == nil || tried[e.url] {
			// every healthy candidate already tried this round; wait for a
			// retry slot or bail when the deadline is gone
			candidates := p.byTag("analysis")
			e = nil
			for _, c := range candidates {
				if !tried[c.url] {
					e = c
					break
				}
			}
			if e == nil {
				return nil, ErrNoHealthyEndpoint
			}
		}
		tried[e.url] = true

		result, err := p.call(ctx, e, method, params)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[rpcpool] analysis call %s failed on %s: %v", method, e.url, err)

		if len(tried) >= len(p.byTag("analysis")) {
			select {
			case <-time.After(200 * time.Millisecond):
				tried = make(map[string]bool)
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

// BroadcastSend sends the same raw signed transaction in parallel to the
// primary endpoint and every bundle-tagged endpoint. The first endpoint to
// return a signature wins; the rest are fire-and-forget.
func (p *Pool) BroadcastSend(ctx context.Context, rawTx []byte) (string, error) {
	targets := append(p.byTag("primary"), p.byTag("bundle")...)
	if len(targets) == 0 {
		return "", ErrNoHealthyEndpoint
	}

	type result struct {
		sig string
		err error
	}
	results := make(chan result, len(targets))
	encoded, _ := json.Marshal(string(rawTx))

	for _, e := range targets {
		e := e
		go func() {
			res, err := p.call(ctx, e, "sendTransaction", []json.RawMessage{encoded})
			if err != nil {
				results <- result{err: err}
				return
			}
			var sig string
			if err := json.Unmarshal(res, &sig); err != nil {
				results <- result{err: err}
				return
			}
			results <- result{sig: sig}
		}()
	}

	var lastErr error
	for i := 0; i < len(targets); i++ {
		select {
		case r := <-results:
			if r.err == nil {
				return r.sig, nil
			}
			lastErr = r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("rpcpool: broadcast failed on every endpoint: %w", lastErr)
}

// healthPingLoop periodically re-probes unhealthy endpoints with a simple
// periodic health ping.
func (p *Pool) healthPingLoop() {
	ticker := time.NewTicker(healthPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for _, e := range p.endpoints {
				if e.isHealthy() {
					continue
				}
				if _, err := p.call(ctx, e, "getHealth"); err == nil {
					e.recordSuccess()
				}
			}
			cancel()
		case <-p.stopPing:
			return
		}
	}
}
