package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"omnidex/crypto"
)

func testWho() crypto.Address {
	raw := make([]byte, 20)
	raw[0] = 0x07
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestFlattenUsesEventProjection(t *testing.T) {
	flat := Flatten(OmnipoolSellExecuted{
		Who:       testWho(),
		AssetIn:   2,
		AssetOut:  3,
		AmountIn:  big.NewInt(1000),
		AmountOut: big.NewInt(1990),
	})
	require.Equal(t, TypeOmnipoolSellExecuted, flat.Type)
	require.Equal(t, "1000", flat.Attributes["amountIn"])
	require.Equal(t, "1990", flat.Attributes["amountOut"])
	require.Equal(t, "0", flat.Attributes["fee"])
	require.Equal(t, testWho().String(), flat.Attributes["who"])
}

func TestFlattenFallsBackToBareType(t *testing.T) {
	flat := Flatten(RouteUpdated{AssetIn: 1, AssetOut: 3, Hops: 2})
	require.Equal(t, TypeRouteUpdated, flat.Type)
	require.Empty(t, flat.Attributes)
}

func TestLogEmitterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(slog.New(slog.NewJSONHandler(&buf, nil)))

	emitter.Emit(RouteExecuted{
		Who:       testWho(),
		AssetIn:   1,
		AssetOut:  3,
		AmountIn:  big.NewInt(10),
		AmountOut: big.NewInt(30),
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, TypeRouteExecuted, entry["type"])
	require.Equal(t, "10", entry["amountIn"])
	require.Equal(t, "30", entry["amountOut"])
}
