package xyk

import (
	"errors"
	"fmt"
	"math/big"

	"omnidex/core/events"
	"omnidex/core/types"
	"omnidex/crypto"
	"omnidex/fixmath"
	"omnidex/native/common"
)

const moduleName = "xyk"

var (
	ErrPoolNotFound          = errors.New("xyk: pool not found")
	ErrPoolExists            = errors.New("xyk: pool already exists")
	ErrSameAsset             = errors.New("xyk: asset in and asset out are identical")
	ErrInvalidAmount         = errors.New("xyk: invalid amount")
	ErrInsufficientLiquidity = errors.New("xyk: insufficient liquidity")
	ErrInsufficientShares    = errors.New("xyk: insufficient shares")
	ErrTradingLimitReached   = errors.New("xyk: trading limit reached")
)

// pairKey normalises the asset pair so both orderings address the same pool.
func pairKey(a, b types.AssetID) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("xyk/pair/%d/%d", a, b))
}

func shareKey(a, b types.AssetID, who crypto.Address) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("xyk/shares/%d/%d/%s", a, b, who.String()))
}

// PoolAccount derives the ledger account holding the pair reserves.
func PoolAccount(a, b types.AssetID) crypto.Address {
	if b < a {
		a, b = b, a
	}
	return crypto.ModuleAddress(fmt.Sprintf("xyk/%d/%d", a, b))
}

// Pool is the stored description of one constant-product pair.
type Pool struct {
	AssetA      types.AssetID
	AssetB      types.AssetID
	Fee         fixmath.Permill
	TotalShares *big.Int
}

func (p *Pool) Account() crypto.Address {
	return PoolAccount(p.AssetA, p.AssetB)
}

type poolRecord struct {
	AssetA      uint64
	AssetB      uint64
	Fee         uint32
	TotalShares *big.Int
}

// Storage abstracts the subset of state manager functionality required by the
// pair registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type State struct {
	store Storage
}

func NewState(store Storage) *State {
	return &State{store: store}
}

func (s *State) GetPool(a, b types.AssetID) (*Pool, error) {
	var record poolRecord
	ok, err := s.store.KVGet(pairKey(a, b), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	return &Pool{
		AssetA:      types.AssetID(record.AssetA),
		AssetB:      types.AssetID(record.AssetB),
		Fee:         fixmath.Permill(record.Fee),
		TotalShares: record.TotalShares,
	}, nil
}

func (s *State) HasPool(a, b types.AssetID) (bool, error) {
	return s.store.KVGet(pairKey(a, b), nil)
}

func (s *State) PutPool(pool *Pool) error {
	return s.store.KVPut(pairKey(pool.AssetA, pool.AssetB), poolRecord{
		AssetA:      uint64(pool.AssetA),
		AssetB:      uint64(pool.AssetB),
		Fee:         uint32(pool.Fee),
		TotalShares: pool.TotalShares,
	})
}

type shareRecord struct {
	Amount *big.Int
}

func (s *State) Shares(a, b types.AssetID, who crypto.Address) (*big.Int, error) {
	var record shareRecord
	ok, err := s.store.KVGet(shareKey(a, b, who), &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}

func (s *State) SetShares(a, b types.AssetID, who crypto.Address, amount *big.Int) error {
	key := shareKey(a, b, who)
	if amount == nil || amount.Sign() == 0 {
		return s.store.KVDelete(key)
	}
	return s.store.KVPut(key, shareRecord{Amount: amount})
}

// Engine executes constant-product pair operations.
type Engine struct {
	state   *State
	ledger  common.Ledger
	limiter common.Limiter
	emitter events.Emitter
	pauses  common.PauseView
	tx      common.TxRunner
}

func NewEngine(state *State, ledger common.Ledger) *Engine {
	return &Engine{state: state, ledger: ledger, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetLimiter(limiter common.Limiter) { e.limiter = limiter }
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }
func (e *Engine) SetTxRunner(tx common.TxRunner)    { e.tx = tx }
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		e.emitter = emitter
	}
}

func (e *Engine) run(fn func() error) error {
	if e.tx == nil {
		return fn()
	}
	return e.tx.WithTransaction(fn)
}

// CreatePool seeds a new pair with the creator's deposits. Initial shares
// equal the first asset's deposit.
func (e *Engine) CreatePool(who crypto.Address, assetA types.AssetID, amountA *big.Int, assetB types.AssetID, amountB *big.Int, fee fixmath.Permill) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.run(func() error {
		if assetA == assetB {
			return ErrSameAsset
		}
		if amountA == nil || amountA.Sign() <= 0 || amountB == nil || amountB.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if !fee.IsValid() {
			return ErrInvalidAmount
		}
		exists, err := e.state.HasPool(assetA, assetB)
		if err != nil {
			return err
		}
		if exists {
			return ErrPoolExists
		}
		account := PoolAccount(assetA, assetB)
		if err := e.ledger.Transfer(who, account, assetA, amountA); err != nil {
			return err
		}
		if err := e.ledger.Transfer(who, account, assetB, amountB); err != nil {
			return err
		}
		pool := &Pool{AssetA: assetA, AssetB: assetB, Fee: fee, TotalShares: new(big.Int).Set(amountA)}
		if pool.AssetB < pool.AssetA {
			pool.AssetA, pool.AssetB = pool.AssetB, pool.AssetA
			pool.TotalShares = new(big.Int).Set(amountB)
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		if err := e.mintShares(who, pool, pool.TotalShares); err != nil {
			return err
		}
		e.emitter.Emit(events.XYKPoolCreated{Who: who, AssetA: pool.AssetA, AssetB: pool.AssetB})
		return nil
	})
}

func (e *Engine) reserve(pool *Pool, asset types.AssetID) (*big.Int, error) {
	return e.ledger.FreeBalance(pool.Account(), asset)
}

func (e *Engine) sharesOf(who crypto.Address, pool *Pool) (*big.Int, error) {
	return e.state.Shares(pool.AssetA, pool.AssetB, who)
}

func (e *Engine) mintShares(who crypto.Address, pool *Pool, amount *big.Int) error {
	held, err := e.sharesOf(who, pool)
	if err != nil {
		return err
	}
	return e.state.SetShares(pool.AssetA, pool.AssetB, who, new(big.Int).Add(held, amount))
}

func (e *Engine) burnShares(who crypto.Address, pool *Pool, amount *big.Int) error {
	held, err := e.sharesOf(who, pool)
	if err != nil {
		return err
	}
	remaining := new(big.Int).Sub(held, amount)
	if remaining.Sign() < 0 {
		return ErrInsufficientShares
	}
	return e.state.SetShares(pool.AssetA, pool.AssetB, who, remaining)
}

type quote struct {
	pool       *Pool
	reserveIn  *big.Int
	reserveOut *big.Int
	amountIn   *big.Int
	amountOut  *big.Int
	fee        *big.Int
}

func (e *Engine) previewSell(assetIn, assetOut types.AssetID, amountIn *big.Int) (*quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if assetIn == assetOut {
		return nil, ErrSameAsset
	}
	pool, err := e.state.GetPool(assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	reserveIn, err := e.reserve(pool, assetIn)
	if err != nil {
		return nil, err
	}
	reserveOut, err := e.reserve(pool, assetOut)
	if err != nil {
		return nil, err
	}
	grownIn, err := fixmath.CheckedAdd(reserveIn, amountIn)
	if err != nil {
		return nil, err
	}
	outGross, err := fixmath.MulDiv(reserveOut, amountIn, grownIn, fixmath.Down)
	if err != nil {
		return nil, err
	}
	fee, err := pool.Fee.MulCeil(outGross)
	if err != nil {
		return nil, err
	}
	amountOut := new(big.Int).Sub(outGross, fee)
	if amountOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return &quote{
		pool:       pool,
		reserveIn:  reserveIn,
		reserveOut: reserveOut,
		amountIn:   new(big.Int).Set(amountIn),
		amountOut:  amountOut,
		fee:        fee,
	}, nil
}

func (e *Engine) previewBuy(assetIn, assetOut types.AssetID, amountOut *big.Int) (*quote, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if assetIn == assetOut {
		return nil, ErrSameAsset
	}
	pool, err := e.state.GetPool(assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	reserveIn, err := e.reserve(pool, assetIn)
	if err != nil {
		return nil, err
	}
	reserveOut, err := e.reserve(pool, assetOut)
	if err != nil {
		return nil, err
	}
	outGross, err := pool.Fee.DivByComplementCeil(amountOut)
	if err != nil {
		return nil, err
	}
	if outGross.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	remainder := new(big.Int).Sub(reserveOut, outGross)
	amountIn, err := fixmath.MulDiv(reserveIn, outGross, remainder, fixmath.Up)
	if err != nil {
		return nil, err
	}
	return &quote{
		pool:       pool,
		reserveIn:  reserveIn,
		reserveOut: reserveOut,
		amountIn:   amountIn,
		amountOut:  new(big.Int).Set(amountOut),
		fee:        new(big.Int).Sub(outGross, amountOut),
	}, nil
}

// QuoteSell prices a sell without touching state.
func (e *Engine) QuoteSell(assetIn, assetOut types.AssetID, amountIn *big.Int) (*big.Int, error) {
	q, err := e.previewSell(assetIn, assetOut, amountIn)
	if err != nil {
		return nil, err
	}
	return q.amountOut, nil
}

// QuoteBuy prices a buy without touching state.
func (e *Engine) QuoteBuy(assetIn, assetOut types.AssetID, amountOut *big.Int) (*big.Int, error) {
	q, err := e.previewBuy(assetIn, assetOut, amountOut)
	if err != nil {
		return nil, err
	}
	return q.amountIn, nil
}

func (e *Engine) applyTrade(who crypto.Address, assetIn, assetOut types.AssetID, q *quote) error {
	if e.limiter != nil {
		if err := e.limiter.EnsureTradeVolumeLimit(
			assetIn, q.reserveIn, q.amountIn,
			assetOut, q.reserveOut, q.amountOut,
		); err != nil {
			return err
		}
	}
	account := q.pool.Account()
	if err := e.ledger.Transfer(who, account, assetIn, q.amountIn); err != nil {
		return err
	}
	return e.ledger.Transfer(account, who, assetOut, q.amountOut)
}

// Sell trades amountIn of assetIn for assetOut.
func (e *Engine) Sell(who crypto.Address, assetIn, assetOut types.AssetID, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountOut *big.Int
	err := e.run(func() error {
		q, err := e.previewSell(assetIn, assetOut, amountIn)
		if err != nil {
			return err
		}
		if minAmountOut != nil && q.amountOut.Cmp(minAmountOut) < 0 {
			return ErrTradingLimitReached
		}
		if err := e.applyTrade(who, assetIn, assetOut, q); err != nil {
			return err
		}
		e.emitter.Emit(events.XYKSellExecuted{
			Who:       who,
			AssetIn:   assetIn,
			AssetOut:  assetOut,
			AmountIn:  q.amountIn,
			AmountOut: q.amountOut,
			FeeAmount: q.fee,
		})
		amountOut = q.amountOut
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// Buy trades assetIn for exactly amountOut of assetOut.
func (e *Engine) Buy(who crypto.Address, assetIn, assetOut types.AssetID, amountOut, maxAmountIn *big.Int) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountIn *big.Int
	err := e.run(func() error {
		q, err := e.previewBuy(assetIn, assetOut, amountOut)
		if err != nil {
			return err
		}
		if maxAmountIn != nil && q.amountIn.Cmp(maxAmountIn) > 0 {
			return ErrTradingLimitReached
		}
		if err := e.applyTrade(who, assetIn, assetOut, q); err != nil {
			return err
		}
		e.emitter.Emit(events.XYKBuyExecuted{
			Who:       who,
			AssetIn:   assetIn,
			AssetOut:  assetOut,
			AmountIn:  q.amountIn,
			AmountOut: q.amountOut,
			FeeAmount: q.fee,
		})
		amountIn = q.amountIn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountIn, nil
}

// AddLiquidity deposits assetA pro rata; the matching assetB amount is derived
// from the current reserve ratio, rounded up against the provider.
func (e *Engine) AddLiquidity(who crypto.Address, assetA types.AssetID, amountA *big.Int, assetB types.AssetID) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var shares *big.Int
	err := e.run(func() error {
		if amountA == nil || amountA.Sign() <= 0 {
			return ErrInvalidAmount
		}
		pool, err := e.state.GetPool(assetA, assetB)
		if err != nil {
			return err
		}
		reserveA, err := e.reserve(pool, assetA)
		if err != nil {
			return err
		}
		reserveB, err := e.reserve(pool, assetB)
		if err != nil {
			return err
		}
		amountB, err := fixmath.MulDiv(reserveB, amountA, reserveA, fixmath.Up)
		if err != nil {
			return err
		}
		if amountB.Sign() <= 0 {
			return ErrInvalidAmount
		}
		shares, err = fixmath.MulDiv(pool.TotalShares, amountA, reserveA, fixmath.Down)
		if err != nil {
			return err
		}
		if shares.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if e.limiter != nil {
			if err := e.limiter.EnsureAddLiquidityLimit(assetA, reserveA, amountA); err != nil {
				return err
			}
			if err := e.limiter.EnsureAddLiquidityLimit(assetB, reserveB, amountB); err != nil {
				return err
			}
		}
		account := pool.Account()
		if err := e.ledger.Transfer(who, account, assetA, amountA); err != nil {
			return err
		}
		if err := e.ledger.Transfer(who, account, assetB, amountB); err != nil {
			return err
		}
		shareAssetA, shareAssetB := pool.AssetA, pool.AssetB
		pool.TotalShares = new(big.Int).Add(pool.TotalShares, shares)
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		if err := e.mintShares(who, pool, shares); err != nil {
			return err
		}
		e.emitter.Emit(events.XYKLiquidityAdded{Who: who, AssetA: shareAssetA, AssetB: shareAssetB, Shares: shares})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// RemoveLiquidity burns shares and pays out both reserves pro rata.
func (e *Engine) RemoveLiquidity(who crypto.Address, assetA, assetB types.AssetID, shares *big.Int) (*big.Int, *big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	var amountA, amountB *big.Int
	err := e.run(func() error {
		if shares == nil || shares.Sign() <= 0 {
			return ErrInvalidAmount
		}
		pool, err := e.state.GetPool(assetA, assetB)
		if err != nil {
			return err
		}
		if shares.Cmp(pool.TotalShares) >= 0 {
			return ErrInsufficientShares
		}
		held, err := e.sharesOf(who, pool)
		if err != nil {
			return err
		}
		if held.Cmp(shares) < 0 {
			return ErrInsufficientShares
		}
		reserveA, err := e.reserve(pool, assetA)
		if err != nil {
			return err
		}
		reserveB, err := e.reserve(pool, assetB)
		if err != nil {
			return err
		}
		amountA, err = fixmath.MulDiv(reserveA, shares, pool.TotalShares, fixmath.Down)
		if err != nil {
			return err
		}
		amountB, err = fixmath.MulDiv(reserveB, shares, pool.TotalShares, fixmath.Down)
		if err != nil {
			return err
		}
		if e.limiter != nil {
			if err := e.limiter.EnsureRemoveLiquidityLimit(assetA, reserveA, amountA); err != nil {
				return err
			}
			if err := e.limiter.EnsureRemoveLiquidityLimit(assetB, reserveB, amountB); err != nil {
				return err
			}
		}
		account := pool.Account()
		if err := e.ledger.Transfer(account, who, assetA, amountA); err != nil {
			return err
		}
		if err := e.ledger.Transfer(account, who, assetB, amountB); err != nil {
			return err
		}
		if err := e.burnShares(who, pool, shares); err != nil {
			return err
		}
		pool.TotalShares = new(big.Int).Sub(pool.TotalShares, shares)
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		e.emitter.Emit(events.XYKLiquidityRemoved{Who: who, AssetA: pool.AssetA, AssetB: pool.AssetB, Shares: shares})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// LiquidityDepth reports the pair's reserve of the asset.
func (e *Engine) LiquidityDepth(asset, pairedWith types.AssetID) (*big.Int, error) {
	pool, err := e.state.GetPool(asset, pairedWith)
	if err != nil {
		return nil, err
	}
	return e.reserve(pool, asset)
}
