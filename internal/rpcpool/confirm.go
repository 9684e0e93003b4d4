package rpcpool

import (
	"context"
	"encoding/json"
	"time"
)

const maxConsecutivePollErrors = 2

// ConfirmResult is the terminal outcome of Confirm.
type ConfirmResult struct {
	Confirmed bool
	Slot      int64
	Err       error
}

type statusPayload struct {
	Slot      int64  `json:"slot"`
	Status    string `json:"status"` // "confirmed", "pending", "failed"
	ErrDetail string `json:"errDetail,omitempty"`
}

// Confirm polls transaction status until confirmed, an on-chain failure is
// observed, or deadline elapses. It rotates among {primary ∪ bundle}
// endpoints after two consecutive poll errors, and — if rebroadcast is true —
// resends rawTx to every endpoint every rebroadcastInterval until a terminal
// outcome. Resubmission is safe: signature-keyed transports de-duplicate
// identical signed transactions.
func (p *Pool) Confirm(ctx context.Context, signature string, rawTx []byte, rebroadcast bool, rebroadcastInterval time.Duration) ConfirmResult {
	targets := append(p.byTag("primary"), p.byTag("bundle")...)
	if len(targets) == 0 {
		return ConfirmResult{Err: ErrNoHealthyEndpoint}
	}

	pollTicker := time.NewTicker(time.Second)
	defer pollTicker.Stop()

	var rebroadcastTicker *time.Ticker
	var rebroadcastC <-chan time.Time
	if rebroadcast {
		if rebroadcastInterval <= 0 {
			rebroadcastInterval = 2 * time.Second
		}
		rebroadcastTicker = time.NewTicker(rebroadcastInterval)
		defer rebroadcastTicker.Stop()
		rebroadcastC = rebroadcastTicker.C
	}

	sigParam, _ := json.Marshal(signature)
	consecutiveErrors := 0
	idx := 0

	for {
		select {
		case <-ctx.Done():
			return ConfirmResult{Err: ctx.Err()}

		case <-rebroadcastC:
			encoded, _ := json.Marshal(string(rawTx))
			for _, e := range targets {
				go p.call(ctx, e, "sendTransaction", []json.RawMessage{encoded})
			}

		case <-pollTicker.C:
			e := targets[idx%len(targets)]
			raw, err := p.call(ctx, e, "getSignatureStatus", []json.RawMessage{sigParam})
			if err != nil {
				consecutiveErrors++
				if consecutiveErrors >= maxConsecutivePollErrors {
					idx++
					consecutiveErrors = 0
				}
				continue
			}
			consecutiveErrors = 0

			var status statusPayload
			if err := json.Unmarshal(raw, &status); err != nil {
				continue
			}
			switch status.Status {
			case "confirmed":
				return ConfirmResult{Confirmed: true, Slot: status.Slot}
			case "failed":
				return ConfirmResult{Err: &ErrOnChainFailure{Detail: status.ErrDetail}}
			}
		}
	}
}
