package oracle

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// aggregatorABI covers the two read methods of a Chainlink price feed.
const aggregatorABI = `[
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[
    {"internalType":"uint8","name":"","type":"uint8"}],
   "stateMutability":"view","type":"function"}
]`

// ChainlinkFeed reads the latest round of an on-chain Chainlink aggregator.
// It is the settlement-side price source for the divergence tracker and the
// fallback strike source.
type ChainlinkFeed struct {
	client *ethclient.Client
	addr   common.Address
	abi    abi.ABI

	mu       sync.Mutex
	decimals uint8
	haveDec  bool
}

// Dial connects to the RPC endpoint and wraps the feed at addr.
func Dial(rpcURL, addr string) (*ChainlinkFeed, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse abi: %w", err)
	}
	return &ChainlinkFeed{
		client: client,
		addr:   common.HexToAddress(addr),
		abi:    parsed,
	}, nil
}

// CurrentPrice returns the latest round's answer scaled by the feed's
// decimals, with the round's update time.
func (f *ChainlinkFeed) CurrentPrice(ctx context.Context) (float64, time.Time, error) {
	dec, err := f.feedDecimals(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}

	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(out) != 5 {
		return 0, time.Time{}, fmt.Errorf("oracle: unexpected latestRoundData arity %d", len(out))
	}

	answer, ok := out[1].(*big.Int)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("oracle: bad answer type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("oracle: bad updatedAt type %T", out[3])
	}

	price := scale(answer, dec)
	if price <= 0 {
		return 0, time.Time{}, fmt.Errorf("oracle: non-positive answer %s", answer)
	}
	return price, time.Unix(updatedAt.Int64(), 0), nil
}

func (f *ChainlinkFeed) feedDecimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	if f.haveDec {
		dec := f.decimals
		f.mu.Unlock()
		return dec, nil
	}
	f.mu.Unlock()

	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("oracle: unexpected decimals arity %d", len(out))
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("oracle: bad decimals type %T", out[0])
	}

	f.mu.Lock()
	f.decimals = dec
	f.haveDec = true
	f.mu.Unlock()
	return dec, nil
}

func (f *ChainlinkFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("oracle: pack %s: %w", method, err)
	}
	res, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &f.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: call %s: %w", method, err)
	}
	out, err := f.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("oracle: unpack %s: %w", method, err)
	}
	return out, nil
}

func scale(answer *big.Int, decimals uint8) float64 {
	v, _ := new(big.Float).SetInt(answer).Float64()
	return v / math.Pow10(int(decimals))
}
