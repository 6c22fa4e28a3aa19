package audit

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"track_record/internal/domain"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestEncodeInsertionOrderIndependence(t *testing.T) {
	a := NewFieldSet().
		PutString("symbol", "EURUSD").
		PutPrice("entryPrice", dec(t, "1.10345")).
		PutMoney("size", dec(t, "0.5")).
		PutInt("timestamp", 1700000000)

	b := NewFieldSet().
		PutInt("timestamp", 1700000000).
		PutMoney("size", dec(t, "0.5")).
		PutPrice("entryPrice", dec(t, "1.10345")).
		PutString("symbol", "EURUSD")

	require.Equal(t, a.Encode(), b.Encode())
	require.Equal(t, Digest(a.Encode()), Digest(b.Encode()))
}

func TestEncodeFormatting(t *testing.T) {
	out := NewFieldSet().
		PutString("note", `a "quoted" \path`).
		PutMoney("profit", dec(t, "-0.345")).
		PutPrice("price", dec(t, "1.1")).
		PutInt("count", 42).
		Encode()

	require.Equal(t,
		`{"count":42,"note":"a \"quoted\" \\path","price":1.10000000,"profit":-0.35}`,
		out)
}

func TestEncodeNoWhitespaceAndSortedKeys(t *testing.T) {
	out := NewFieldSet().
		PutString("b", "2").
		PutString("a", "1").
		PutString("Z", "0"). // uppercase sorts before lowercase byte-wise
		Encode()

	require.Equal(t, `{"Z":"0","a":"1","b":"2"}`, out)
}

func TestEncodeLastPutWins(t *testing.T) {
	out := NewFieldSet().
		PutInt("seqNo", 1).
		PutInt("seqNo", 2).
		Encode()
	require.Equal(t, `{"seqNo":2}`, out)
}

func TestGoldenPayloads(t *testing.T) {
	g := goldie.New(t)

	open := TradeOpenPayload(domain.Position{
		ID:         "18442",
		Symbol:     "EURUSD",
		Direction:  domain.DirectionBuy,
		Size:       dec(t, "0.5"),
		EntryPrice: dec(t, "1.10345"),
		StopLevel:  dec(t, "1.098"),
		TakeLevel:  dec(t, "1.112"),
	})
	g.Assert(t, "trade_open", []byte(open.Encode()))

	modify := TradeModifyPayload("18442",
		dec(t, "1.098"), dec(t, "1.101"),
		dec(t, "1.112"), dec(t, "1.115"))
	g.Assert(t, "trade_modify", []byte(modify.Encode()))

	partial := PartialClosePayload("18442",
		dec(t, "0.2"), dec(t, "0.3"),
		dec(t, "1.105"), dec(t, "3.1"))
	g.Assert(t, "partial_close", []byte(partial.Encode()))

	closed := TradeClosePayload(domain.ClosedTrade{
		PositionID: "18442",
		ClosePrice: dec(t, "1.112"),
		Profit:     dec(t, "42.75"),
		Commission: dec(t, "-0.35"),
		Swap:       dec(t, "-1.1"),
	})
	g.Assert(t, "trade_close", []byte(closed.Encode()))

	snapshot := SnapshotPayload(domain.AccountInfo{
		Balance:       dec(t, "10000"),
		Equity:        dec(t, "10123.45"),
		UnrealizedPnL: dec(t, "123.45"),
		DrawdownPct:   dec(t, "0"),
		OpenPositions: 2,
	})
	g.Assert(t, "snapshot", []byte(snapshot.Encode()))

	start := SessionStartPayload("PaperBroker", "USD", dec(t, "10000"))
	g.Assert(t, "session_start", []byte(start.Encode()))

	end := SessionEndPayload(domain.AccountInfo{
		Balance:       dec(t, "10042.4"),
		OpenPositions: 0,
	})
	g.Assert(t, "session_end", []byte(end.Encode()))
}

// The full hash input must also be stable: envelope identity fields merged
// with the payload into one sorted object.
func TestGoldenHashInput(t *testing.T) {
	g := goldie.New(t)

	input := SessionStartPayload("PaperBroker", "USD", dec(t, "10000")).
		Clone().
		PutString("instanceId", "acct-1").
		PutString("eventType", "SESSION_START").
		PutString("prevHash", GenesisHash).
		PutUint("seqNo", 1).
		PutInt("timestamp", 1700000000)

	g.Assert(t, "hash_input_session_start", []byte(input.Encode()))
}

func TestSplitCanonicalObjectRoundTrip(t *testing.T) {
	fs := NewFieldSet().
		PutString("note", `comma, "colon": \slash`).
		PutMoney("profit", dec(t, "12.5")).
		PutInt("count", -3)
	encoded := fs.Encode()

	pairs, err := splitCanonicalObject(encoded)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	require.Equal(t, "count", pairs[0].key)
	require.Equal(t, "-3", pairs[0].raw)
	require.Equal(t, "note", pairs[1].key)
	require.Equal(t, `"comma, \"colon\": \\slash"`, pairs[1].raw)
	require.Equal(t, "profit", pairs[2].key)
	require.Equal(t, "12.50", pairs[2].raw)
}

func TestMergeCanonicalMatchesDirectEncode(t *testing.T) {
	payload := TradeOpenPayload(domain.Position{
		ID:         "7",
		Symbol:     "GBPUSD",
		Direction:  domain.DirectionSell,
		Size:       dec(t, "1.25"),
		EntryPrice: dec(t, "1.27001"),
		StopLevel:  dec(t, "1.275"),
		TakeLevel:  dec(t, "1.26"),
	})

	identity := NewFieldSet().
		PutString("instanceId", "acct-1").
		PutString("eventType", "TRADE_OPEN").
		PutString("prevHash", GenesisHash).
		PutUint("seqNo", 3).
		PutInt("timestamp", 1700000123)

	direct := payload.Clone().
		PutString("instanceId", "acct-1").
		PutString("eventType", "TRADE_OPEN").
		PutString("prevHash", GenesisHash).
		PutUint("seqNo", 3).
		PutInt("timestamp", 1700000123).
		Encode()

	merged, err := mergeCanonical(identity, payload.Encode())
	require.NoError(t, err)
	require.Equal(t, direct, merged)
}

func TestSplitCanonicalObjectRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "{", `{"a":}`, `{"a":"x`, `{"a" :1}`} {
		_, err := splitCanonicalObject(in)
		require.Error(t, err, "input %q", in)
	}
}
