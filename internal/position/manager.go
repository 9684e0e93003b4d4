package position

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sniperbot/engine/internal/amm"
	"github.com/sniperbot/engine/internal/config"
	"github.com/sniperbot/engine/internal/eventbus"
	"github.com/sniperbot/engine/internal/execution"
	"github.com/sniperbot/engine/pkg/models"
)

const tickCadence = 1500 * time.Millisecond

// ReservesReader is the subset of amm.ReadReserves's dependency this
// package needs, narrowed to an interface for testability.
type ReservesReader interface {
	Read(ctx context.Context, source models.AMMSource, poolAddress string) (amm.Reserves, error)
}

// Executor is the subset of execution.Engine the position loop depends on.
type Executor interface {
	Execute(ctx context.Context, order execution.Order) execution.TradeResult
}

// Store persists position state. Manager calls SavePosition from each
// position's own loop goroutine, so calls for different positions can run
// concurrently.
type Store interface {
	SavePosition(pos models.Position) error
}

// Manager owns every live position's tick loop and the admission counter
// bounded by risk.max_concurrent.
type Manager struct {
	reserves ReservesReader
	exec     Executor
	bus      *eventbus.Bus
	store    Store
	risk     config.RiskConfig

	openCount atomic.Int64
	maxOpen   int64

	mu        sync.Mutex
	positions map[string]*liveposition
}

type liveposition struct {
	mu       sync.Mutex
	pos      models.Position
	openedAt time.Time
	cancel   context.CancelFunc
}

func NewManager(reserves ReservesReader, exec Executor, bus *eventbus.Bus, store Store, risk config.RiskConfig) *Manager {
	return &Manager{
		reserves:  reserves,
		exec:      exec,
		bus:       bus,
		store:     store,
		risk:      risk,
		maxOpen:   int64(risk.MaxConcurrent),
		positions: make(map[string]*liveposition),
	}
}

// OpenCount returns the current number of admitted open positions.
func (m *Manager) OpenCount() int64 { return m.openCount.Load() }

// IsMintOpen reports whether any live position currently holds the given
// token mint. Used by internal/cleanup to re-check for a race against a new
// buy immediately before closing a token account.
func (m *Manager) IsMintOpen(mint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lp := range m.positions {
		lp.mu.Lock()
		tokenMint := lp.pos.TokenMint
		terminal := lp.pos.IsTerminal()
		lp.mu.Unlock()
		if tokenMint == mint && !terminal {
			return true
		}
	}
	return false
}

// TryAdmit attempts to reserve one admission slot; returns false if the
// engine is already at max_concurrent — first-come, first-served, reason
// max_concurrent on rejection.
func (m *Manager) TryAdmit() bool {
	for {
		cur := m.openCount.Load()
		if cur >= m.maxOpen {
			return false
		}
		if m.openCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release gives back an admission slot reserved by TryAdmit when the buy
// that was meant to fill it never lands (caller never calls Open).
func (m *Manager) Release() {
	m.openCount.Add(-1)
}

// Open registers a newly-bought position and starts its tick loop. Callers
// must have already called TryAdmit and received a confirmed buy.
func (m *Manager) Open(ctx context.Context, pos models.Position) {
	lp := &liveposition{pos: pos, openedAt: pos.OpenedAt}
	loopCtx, cancel := context.WithCancel(ctx)
	lp.cancel = cancel

	m.mu.Lock()
	m.positions[pos.PositionID] = lp
	m.mu.Unlock()

	m.bus.Publish(models.TopicPositionOpened, pos)
	go m.runLoop(loopCtx, lp)
}

// Shutdown cancels every position loop; each loop runs one final tick to
// persist state before exiting.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lp := range m.positions {
		lp.cancel()
	}
}

func (m *Manager) runLoop(ctx context.Context, lp *liveposition) {
	ticker := time.NewTicker(tickCadence)
	defer ticker.Stop()

	var previousReserves amm.Reserves
	for {
		select {
		case <-ctx.Done():
			m.tick(context.Background(), lp, &previousReserves)
			return
		case <-ticker.C:
			if m.tick(ctx, lp, &previousReserves) {
				return
			}
		}
	}
}

// tick runs one observation+evaluation cycle. Returns true once the
// position has reached a terminal state and its loop should stop.
func (m *Manager) tick(ctx context.Context, lp *liveposition, previousReserves *amm.Reserves) bool {
	lp.mu.Lock()
	pos := lp.pos
	lp.mu.Unlock()

	if pos.IsTerminal() {
		return true
	}

	reserves, err := m.reserves.Read(ctx, pos.Source, pos.PoolAddress)
	if err != nil {
		log.Printf("[position] %s: read reserves: %v", pos.PositionID, err)
		return false
	}

	price := reserves.Price()
	elapsed := time.Since(lp.openedAt)

	lp.mu.Lock()
	lp.pos.CurrentPrice = price
	if price > lp.pos.PeakPrice {
		lp.pos.PeakPrice = price
		if lp.pos.EntryPrice > 0 {
			lp.pos.PeakMultiplier = price / lp.pos.EntryPrice
		}
	}
	if lp.pos.SolInvested > 0 {
		lp.pos.PnlSol = lp.pos.SolReturned - lp.pos.SolInvested
		lp.pos.PnlPct = lp.pos.PnlSol / lp.pos.SolInvested * 100
	}
	snapshot := lp.pos
	lp.mu.Unlock()

	decision := evaluateTick(&snapshot, reserves, *previousReserves, elapsed, m.risk)
	*previousReserves = reserves

	if decision.Kind == actionNone {
		m.persistAndPublish(&lp.pos, &lp.mu)
		return false
	}

	terminal := m.applySell(ctx, lp, decision)
	if terminal {
		m.openCount.Add(-1)
	}
	return terminal
}

// applySell submits the decided sell to the execution engine and updates
// position state under its own lock, regardless of the trade's outcome:
// sell_attempts/successes increment either way.
func (m *Manager) applySell(ctx context.Context, lp *liveposition, decision tickDecision) bool {
	lp.mu.Lock()
	pos := lp.pos
	sellAmount := pos.TokenAmount * decision.SellFraction
	lp.mu.Unlock()

	order := execution.Order{
		Side:        execution.SideSell,
		Source:      pos.Source,
		PoolAddress: pos.PoolAddress,
		InputMint:   pos.TokenMint,
		AmountIn:    int64(sellAmount),
		SlippageBps: 9500,
	}
	result := m.exec.Execute(ctx, order)

	lp.mu.Lock()
	lp.pos.SellAttempts++
	if result.Success {
		lp.pos.SellSuccesses++
		lp.pos.TokenAmount -= sellAmount
		lp.pos.SolReturned += float64(result.OutputAmount) / 1e9
	}
	if decision.TPLevelIndex >= 0 && result.Success {
		lp.pos.TPLevelsHit = append(lp.pos.TPLevelsHit, decision.TPLevelIndex)
	}

	terminal := decision.Terminal && result.Success
	if terminal {
		now := time.Now()
		lp.pos.ClosedAt = &now
		lp.pos.ExitReason = decision.ExitReason
		if decision.Kind == actionRug || decision.Kind == actionHardStop {
			lp.pos.Status = models.StatusStopped
		} else {
			lp.pos.Status = models.StatusClosed
		}
	} else if decision.TPLevelIndex >= 0 && result.Success {
		lp.pos.Status = models.StatusPartialClose
	}

	if !result.Success {
		m.bus.Publish(models.TopicSellFailed, models.AlertEvent{
			Timestamp:  time.Now(),
			Severity:   models.SeverityWarning,
			Kind:       "sell_failed",
			Message:    result.Error,
			PositionID: pos.PositionID,
		})
	}
	pos = lp.pos
	lp.mu.Unlock()

	if terminal {
		m.bus.Publish(models.TopicPositionClosed, pos)
	} else {
		m.bus.Publish(models.TopicPositionUpdated, pos)
	}
	if m.store != nil {
		if err := m.store.SavePosition(pos); err != nil {
			log.Printf("[position] %s: persist: %v", pos.PositionID, err)
		}
	}
	return terminal
}

func (m *Manager) persistAndPublish(lp *models.Position, mu *sync.Mutex) {
	mu.Lock()
	pos := *lp
	mu.Unlock()

	m.bus.Publish(models.TopicPositionUpdated, pos)
	if m.store != nil {
		if err := m.store.SavePosition(pos); err != nil {
			log.Printf("[position] %s: persist: %v", pos.PositionID, err)
		}
	}
}
