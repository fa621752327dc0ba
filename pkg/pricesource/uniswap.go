package pricesource

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// Only getReserves is needed from the pair contract.
const uniswapV2PairABI = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[` +
	`{"internalType":"uint112","name":"_reserve0","type":"uint112"},` +
	`{"internalType":"uint112","name":"_reserve1","type":"uint112"},` +
	`{"internalType":"uint32","name":"_blockTimestampLast","type":"uint32"}],` +
	`"payable":false,"stateMutability":"view","type":"function"}]`

var pairABI = mustParseABI(uniswapV2PairABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Errorf("parse pair abi: %w", err))
	}
	return parsed
}

// ratioPrecision is the number of decimal places kept when dividing reserves.
const ratioPrecision = 18

// ContractCaller executes read-only contract calls. *ethclient.Client
// implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type UniswapV2Config struct {
	RPCURL    string
	Pool      common.Address
	Token0    string // symbol of the pool's token0
	Token1    string // symbol of the pool's token1
	Decimals0 uint8
	Decimals1 uint8
}

// UniswapV2 prices a pair from the reserves of one constant-product pool
// (Uniswap V2, PancakeSwap and other forks share the pair interface).
type UniswapV2 struct {
	cfg    UniswapV2Config
	caller ContractCaller
}

// NewUniswapV2 connects to cfg.RPCURL. For HTTP endpoints no request is
// made until the first price lookup.
func NewUniswapV2(ctx context.Context, cfg UniswapV2Config) (*UniswapV2, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("provider error: %w", err)
	}
	return NewUniswapV2WithCaller(cfg, client), nil
}

func NewUniswapV2WithCaller(cfg UniswapV2Config, caller ContractCaller) *UniswapV2 {
	return &UniswapV2{cfg: cfg, caller: caller}
}

func (*UniswapV2) Name() string { return string(KindUniswapV2) }

// Config returns the pool configuration.
func (u *UniswapV2) Config() UniswapV2Config { return u.cfg }

// Reserves is a snapshot of the pool's getReserves() result.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	Scaled0            decimal.Decimal // Reserve0 / 10^Decimals0
	Scaled1            decimal.Decimal // Reserve1 / 10^Decimals1
	BlockTimestampLast uint32
}

// Reserves reads the pool's current reserves.
func (u *UniswapV2) Reserves(ctx context.Context) (Reserves, error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return Reserves{}, fmt.Errorf("pack getReserves: %w", err)
	}
	pool := u.cfg.Pool
	out, err := u.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return Reserves{}, fmt.Errorf("get reserves failed: %w", err)
	}
	vals, err := pairABI.Unpack("getReserves", out)
	if err != nil {
		return Reserves{}, fmt.Errorf("get reserves failed: decode: %w", err)
	}
	if len(vals) != 3 {
		return Reserves{}, fmt.Errorf("get reserves failed: got %d values, want 3", len(vals))
	}
	r0, ok0 := vals[0].(*big.Int)
	r1, ok1 := vals[1].(*big.Int)
	ts, ok2 := vals[2].(uint32)
	if !ok0 || !ok1 || !ok2 {
		return Reserves{}, fmt.Errorf("get reserves failed: unexpected types %T, %T, %T", vals[0], vals[1], vals[2])
	}

	return Reserves{
		Reserve0:           r0,
		Reserve1:           r1,
		Scaled0:            decimal.NewFromBigInt(r0, -int32(u.cfg.Decimals0)),
		Scaled1:            decimal.NewFromBigInt(r1, -int32(u.cfg.Decimals1)),
		BlockTimestampLast: ts,
	}, nil
}

// GetPrice returns the spot reserve ratio in the requested direction.
// amount is ignored.
func (u *UniswapV2) GetPrice(ctx context.Context, base, quote string, _ *decimal.Decimal) (float64, error) {
	price, _, err := u.PriceWithReserves(ctx, base, quote)
	if err != nil {
		return 0, err
	}
	return price.InexactFloat64(), nil
}

// PriceWithReserves returns the exact reserve ratio together with the
// snapshot it was computed from. Unsupported pairs fail before any call to
// the node.
func (u *UniswapV2) PriceWithReserves(ctx context.Context, base, quote string) (decimal.Decimal, Reserves, error) {
	var forward bool
	switch {
	case base == u.cfg.Token0 && quote == u.cfg.Token1:
		forward = true
	case base == u.cfg.Token1 && quote == u.cfg.Token0:
		forward = false
	default:
		return decimal.Decimal{}, Reserves{}, &PairError{Base: base, Quote: quote, Err: ErrPairNotSupported}
	}

	res, err := u.Reserves(ctx)
	if err != nil {
		return decimal.Decimal{}, Reserves{}, err
	}
	price, err := res.Price(forward)
	if err != nil {
		return decimal.Decimal{}, res, &PairError{Base: base, Quote: quote, Err: err}
	}
	return price, res, nil
}

// Price returns token1 per token0 when forward is true, otherwise token0
// per token1.
func (r Reserves) Price(forward bool) (decimal.Decimal, error) {
	if r.Scaled0.Sign() <= 0 || r.Scaled1.Sign() <= 0 {
		return decimal.Decimal{}, ErrNoLiquidity
	}
	if forward {
		return r.Scaled1.DivRound(r.Scaled0, ratioPrecision), nil
	}
	return r.Scaled0.DivRound(r.Scaled1, ratioPrecision), nil
}
