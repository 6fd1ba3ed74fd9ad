package stableswap

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

const moduleName = "stableswap"

// MaxAssetsInPool bounds the pool width; the invariant solver cost grows with
// every extra asset.
const MaxAssetsInPool = 5

const (
	// MinAmplification keeps the curve meaningfully flatter than xyk.
	MinAmplification = 2
	// MaxAmplification keeps the curve away from the constant-sum
	// degeneracy where rounding dominates.
	MaxAmplification = 10_000
)

var (
	ErrPoolNotFound          = errors.New("stableswap: pool not found")
	ErrPoolExists            = errors.New("stableswap: pool already exists")
	ErrAssetNotInPool        = errors.New("stableswap: asset not in pool")
	ErrSameAsset             = errors.New("stableswap: asset in and asset out are identical")
	ErrInvalidAssetCount     = errors.New("stableswap: invalid number of pool assets")
	ErrInvalidAmplification  = errors.New("stableswap: amplification out of range")
	ErrInvalidAmount         = errors.New("stableswap: invalid amount")
	ErrInsufficientLiquidity = errors.New("stableswap: insufficient liquidity")
	ErrInsufficientShares    = errors.New("stableswap: insufficient shares")
	ErrTradingLimitReached   = errors.New("stableswap: trading limit reached")
)

// Pool is the stored description of one stableswap pool. Reserves are not
// duplicated here; they live on the pool's ledger account.
type Pool struct {
	ShareAsset    types.AssetID
	Assets        []types.AssetID
	Amplification uint64
	Fee           fixmath.Permill
	TotalShares   *big.Int
}

// Account returns the ledger account holding the pool reserves.
func (p *Pool) Account() crypto.Address {
	return PoolAccount(p.ShareAsset)
}

// PoolAccount derives the ledger account of the pool keyed by its share asset.
func PoolAccount(shareAsset types.AssetID) crypto.Address {
	return crypto.ModuleAddress(fmt.Sprintf("stableswap/%d", shareAsset))
}

func (p *Pool) assetIndex(asset types.AssetID) int {
	for i, id := range p.Assets {
		if id == asset {
			return i
		}
	}
	return -1
}

// Storage abstracts the subset of state manager functionality required by the
// pool registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type poolRecord struct {
	Assets        []uint64
	Amplification uint64
	Fee           uint32
	TotalShares   *big.Int
}

func poolKey(shareAsset types.AssetID) []byte {
	return []byte(fmt.Sprintf("stableswap/pool/%d", shareAsset))
}

// State is the typed accessor for stableswap pool records.
type State struct {
	store Storage
}

func NewState(store Storage) *State {
	return &State{store: store}
}

func (s *State) GetPool(shareAsset types.AssetID) (*Pool, error) {
	var record poolRecord
	ok, err := s.store.KVGet(poolKey(shareAsset), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPoolNotFound
	}
	assets := make([]types.AssetID, len(record.Assets))
	for i, id := range record.Assets {
		assets[i] = types.AssetID(id)
	}
	return &Pool{
		ShareAsset:    shareAsset,
		Assets:        assets,
		Amplification: record.Amplification,
		Fee:           fixmath.Permill(record.Fee),
		TotalShares:   record.TotalShares,
	}, nil
}

func (s *State) HasPool(shareAsset types.AssetID) (bool, error) {
	return s.store.KVGet(poolKey(shareAsset), nil)
}

func (s *State) PutPool(pool *Pool) error {
	assets := make([]uint64, len(pool.Assets))
	for i, id := range pool.Assets {
		assets[i] = uint64(id)
	}
	return s.store.KVPut(poolKey(pool.ShareAsset), poolRecord{
		Assets:        assets,
		Amplification: pool.Amplification,
		Fee:           uint32(pool.Fee),
		TotalShares:   pool.TotalShares,
	})
}

// Engine executes stableswap pool operations. Trades solve the D invariant
// with Newton iteration; the output side always rounds in the pool's favor.
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

func (e *Engine) reserves(pool *Pool) ([]*big.Int, error) {
	account := pool.Account()
	balances := make([]*big.Int, len(pool.Assets))
	for i, asset := range pool.Assets {
		balance, err := e.ledger.FreeBalance(account, asset)
		if err != nil {
			return nil, err
		}
		balances[i] = balance
	}
	return balances, nil
}

// CreatePool lists a new pool keyed by its share asset and seeds it with the
// creator's initial deposits. The creator receives D shares.
func (e *Engine) CreatePool(who crypto.Address, shareAsset types.AssetID, assets []types.AssetID, amplification uint64, fee fixmath.Permill, initial []*big.Int) error {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	return e.run(func() error {
		if len(assets) < 2 || len(assets) > MaxAssetsInPool {
			return ErrInvalidAssetCount
		}
		if len(initial) != len(assets) {
			return ErrInvalidAmount
		}
		seen := make(map[types.AssetID]struct{}, len(assets))
		for _, asset := range assets {
			if _, dup := seen[asset]; dup || asset == shareAsset {
				return ErrInvalidAssetCount
			}
			seen[asset] = struct{}{}
		}
		if amplification < MinAmplification || amplification > MaxAmplification {
			return ErrInvalidAmplification
		}
		if !fee.IsValid() {
			return ErrInvalidAmount
		}
		exists, err := e.state.HasPool(shareAsset)
		if err != nil {
			return err
		}
		if exists {
			return ErrPoolExists
		}
		for _, amount := range initial {
			if amount == nil || amount.Sign() <= 0 {
				return ErrInvalidAmount
			}
		}
		account := PoolAccount(shareAsset)
		for i, asset := range assets {
			if err := e.ledger.Transfer(who, account, asset, initial[i]); err != nil {
				return err
			}
		}
		shares, err := calculateD(initial, amplification)
		if err != nil {
			return err
		}
		if err := e.ledger.Mint(who, shareAsset, shares); err != nil {
			return err
		}
		pool := &Pool{
			ShareAsset:    shareAsset,
			Assets:        assets,
			Amplification: amplification,
			Fee:           fee,
			TotalShares:   shares,
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		e.emitter.Emit(events.StableswapPoolCreated{
			PoolID:        shareAsset,
			Assets:        assets,
			Amplification: amplification,
		})
		return nil
	})
}

// AddLiquidity deposits the given per-asset amounts (zero entries allowed)
// and mints shares proportional to the invariant growth.
func (e *Engine) AddLiquidity(who crypto.Address, shareAsset types.AssetID, amounts []*big.Int) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var shares *big.Int
	err := e.run(func() error {
		pool, err := e.state.GetPool(shareAsset)
		if err != nil {
			return err
		}
		if len(amounts) != len(pool.Assets) {
			return ErrInvalidAmount
		}
		deposited := false
		for _, amount := range amounts {
			if amount == nil || amount.Sign() < 0 {
				return ErrInvalidAmount
			}
			if amount.Sign() > 0 {
				deposited = true
			}
		}
		if !deposited {
			return ErrInvalidAmount
		}
		before, err := e.reserves(pool)
		if err != nil {
			return err
		}
		dBefore, err := calculateD(before, pool.Amplification)
		if err != nil {
			return err
		}
		account := pool.Account()
		after := make([]*big.Int, len(before))
		for i, amount := range amounts {
			if amount.Sign() > 0 {
				if e.limiter != nil {
					if err := e.limiter.EnsureAddLiquidityLimit(pool.Assets[i], before[i], amount); err != nil {
						return err
					}
				}
				if err := e.ledger.Transfer(who, account, pool.Assets[i], amount); err != nil {
					return err
				}
			}
			after[i] = new(big.Int).Add(before[i], amount)
		}
		dAfter, err := calculateD(after, pool.Amplification)
		if err != nil {
			return err
		}
		if dAfter.Cmp(dBefore) <= 0 {
			return ErrInvalidAmount
		}
		growth := new(big.Int).Sub(dAfter, dBefore)
		shares, err = fixmath.BigMulDiv(pool.TotalShares, growth, dBefore, fixmath.Down)
		if err != nil {
			return err
		}
		if shares.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := e.ledger.Mint(who, shareAsset, shares); err != nil {
			return err
		}
		pool.TotalShares = new(big.Int).Add(pool.TotalShares, shares)
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		e.emitter.Emit(events.StableswapLiquidityAdded{Who: who, PoolID: shareAsset, Shares: shares})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// RemoveLiquidity burns shares and pays out the proportional slice of every
// reserve, rounded down.
func (e *Engine) RemoveLiquidity(who crypto.Address, shareAsset types.AssetID, shares *big.Int) ([]*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amounts []*big.Int
	err := e.run(func() error {
		if shares == nil || shares.Sign() <= 0 {
			return ErrInvalidAmount
		}
		pool, err := e.state.GetPool(shareAsset)
		if err != nil {
			return err
		}
		if shares.Cmp(pool.TotalShares) >= 0 {
			return ErrInsufficientShares
		}
		balance, err := e.ledger.FreeBalance(who, shareAsset)
		if err != nil {
			return err
		}
		if balance.Cmp(shares) < 0 {
			return ErrInsufficientShares
		}
		before, err := e.reserves(pool)
		if err != nil {
			return err
		}
		account := pool.Account()
		amounts = make([]*big.Int, len(pool.Assets))
		for i, reserve := range before {
			amount, err := fixmath.MulDiv(reserve, shares, pool.TotalShares, fixmath.Down)
			if err != nil {
				return err
			}
			if e.limiter != nil {
				if err := e.limiter.EnsureRemoveLiquidityLimit(pool.Assets[i], reserve, amount); err != nil {
					return err
				}
			}
			if err := e.ledger.Transfer(account, who, pool.Assets[i], amount); err != nil {
				return err
			}
			amounts[i] = amount
		}
		if err := e.ledger.Burn(who, shareAsset, shares); err != nil {
			return err
		}
		pool.TotalShares = new(big.Int).Sub(pool.TotalShares, shares)
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		e.emitter.Emit(events.StableswapLiquidityRemoved{Who: who, PoolID: shareAsset, Shares: shares})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

type quote struct {
	pool      *Pool
	reserves  []*big.Int
	inIndex   int
	outIndex  int
	amountIn  *big.Int
	amountOut *big.Int
	fee       *big.Int
}

func (e *Engine) previewSell(shareAsset, assetIn, assetOut types.AssetID, amountIn *big.Int) (*quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if assetIn == assetOut {
		return nil, ErrSameAsset
	}
	pool, err := e.state.GetPool(shareAsset)
	if err != nil {
		return nil, err
	}
	i, j := pool.assetIndex(assetIn), pool.assetIndex(assetOut)
	if i < 0 || j < 0 {
		return nil, ErrAssetNotInPool
	}
	reserves, err := e.reserves(pool)
	if err != nil {
		return nil, err
	}
	d, err := calculateD(reserves, pool.Amplification)
	if err != nil {
		return nil, err
	}
	others := make([]*big.Int, 0, len(reserves)-1)
	for k, reserve := range reserves {
		if k == j {
			continue
		}
		if k == i {
			reserve = new(big.Int).Add(reserve, amountIn)
		}
		others = append(others, reserve)
	}
	y, err := calculateY(others, d, pool.Amplification, len(reserves))
	if err != nil {
		return nil, err
	}
	// One extra unit stays in the pool to absorb solver rounding.
	outGross := new(big.Int).Sub(reserves[j], y)
	outGross.Sub(outGross, one)
	if outGross.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
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
		pool:      pool,
		reserves:  reserves,
		inIndex:   i,
		outIndex:  j,
		amountIn:  new(big.Int).Set(amountIn),
		amountOut: amountOut,
		fee:       fee,
	}, nil
}

func (e *Engine) previewBuy(shareAsset, assetIn, assetOut types.AssetID, amountOut *big.Int) (*quote, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if assetIn == assetOut {
		return nil, ErrSameAsset
	}
	pool, err := e.state.GetPool(shareAsset)
	if err != nil {
		return nil, err
	}
	i, j := pool.assetIndex(assetIn), pool.assetIndex(assetOut)
	if i < 0 || j < 0 {
		return nil, ErrAssetNotInPool
	}
	reserves, err := e.reserves(pool)
	if err != nil {
		return nil, err
	}
	outGross, err := pool.Fee.DivByComplementCeil(amountOut)
	if err != nil {
		return nil, err
	}
	if outGross.Cmp(reserves[j]) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	d, err := calculateD(reserves, pool.Amplification)
	if err != nil {
		return nil, err
	}
	others := make([]*big.Int, 0, len(reserves)-1)
	for k, reserve := range reserves {
		if k == i {
			continue
		}
		if k == j {
			reserve = new(big.Int).Sub(reserve, outGross)
		}
		others = append(others, reserve)
	}
	y, err := calculateY(others, d, pool.Amplification, len(reserves))
	if err != nil {
		return nil, err
	}
	amountIn := new(big.Int).Sub(y, reserves[i])
	amountIn.Add(amountIn, one)
	if amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return &quote{
		pool:      pool,
		reserves:  reserves,
		inIndex:   i,
		outIndex:  j,
		amountIn:  amountIn,
		amountOut: new(big.Int).Set(amountOut),
		fee:       new(big.Int).Sub(outGross, amountOut),
	}, nil
}

// QuoteSell prices a sell without touching state.
func (e *Engine) QuoteSell(shareAsset, assetIn, assetOut types.AssetID, amountIn *big.Int) (*big.Int, error) {
	q, err := e.previewSell(shareAsset, assetIn, assetOut, amountIn)
	if err != nil {
		return nil, err
	}
	return q.amountOut, nil
}

// QuoteBuy prices a buy without touching state.
func (e *Engine) QuoteBuy(shareAsset, assetIn, assetOut types.AssetID, amountOut *big.Int) (*big.Int, error) {
	q, err := e.previewBuy(shareAsset, assetIn, assetOut, amountOut)
	if err != nil {
		return nil, err
	}
	return q.amountIn, nil
}

func (e *Engine) applyTrade(who crypto.Address, assetIn, assetOut types.AssetID, q *quote) error {
	if e.limiter != nil {
		if err := e.limiter.EnsureTradeVolumeLimit(
			assetIn, q.reserves[q.inIndex], q.amountIn,
			assetOut, q.reserves[q.outIndex], q.amountOut,
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

// Sell trades amountIn of assetIn for assetOut inside the pool.
func (e *Engine) Sell(who crypto.Address, shareAsset, assetIn, assetOut types.AssetID, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountOut *big.Int
	err := e.run(func() error {
		q, err := e.previewSell(shareAsset, assetIn, assetOut, amountIn)
		if err != nil {
			return err
		}
		if minAmountOut != nil && q.amountOut.Cmp(minAmountOut) < 0 {
			return ErrTradingLimitReached
		}
		if err := e.applyTrade(who, assetIn, assetOut, q); err != nil {
			return err
		}
		e.emitter.Emit(events.StableswapSellExecuted{
			Who:       who,
			PoolID:    shareAsset,
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

// Buy trades assetIn for exactly amountOut of assetOut inside the pool.
func (e *Engine) Buy(who crypto.Address, shareAsset, assetIn, assetOut types.AssetID, amountOut, maxAmountIn *big.Int) (*big.Int, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var amountIn *big.Int
	err := e.run(func() error {
		q, err := e.previewBuy(shareAsset, assetIn, assetOut, amountOut)
		if err != nil {
			return err
		}
		if maxAmountIn != nil && q.amountIn.Cmp(maxAmountIn) > 0 {
			return ErrTradingLimitReached
		}
		if err := e.applyTrade(who, assetIn, assetOut, q); err != nil {
			return err
		}
		e.emitter.Emit(events.StableswapBuyExecuted{
			Who:       who,
			PoolID:    shareAsset,
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

// LiquidityDepth reports the pool's reserve of the asset.
func (e *Engine) LiquidityDepth(shareAsset, asset types.AssetID) (*big.Int, error) {
	pool, err := e.state.GetPool(shareAsset)
	if err != nil {
		return nil, err
	}
	if pool.assetIndex(asset) < 0 {
		return nil, ErrAssetNotInPool
	}
	return e.ledger.FreeBalance(pool.Account(), asset)
}
