package market

import (
	"testing"
	"time"
)

func TestBookFreshness(t *testing.T) {
	now := time.Now()
	b := BookSnapshot{Timestamp: now.Add(-5 * time.Second)}
	if !b.Fresh(now, 10*time.Second) {
		t.Fatal("5s old snapshot should be fresh")
	}
	b.Timestamp = now.Add(-15 * time.Second)
	if b.Fresh(now, 10*time.Second) {
		t.Fatal("15s old snapshot must be stale")
	}
	if (BookSnapshot{}).Fresh(now, 10*time.Second) {
		t.Fatal("zero timestamp must be stale")
	}
}

func TestBookValid(t *testing.T) {
	good := BookSnapshot{YesBid: 0.38, YesAsk: 0.40, NoBid: 0.58, NoAsk: 0.60, YesAskSize: 10, NoAskSize: 10}
	if !good.Valid() {
		t.Fatal("well-formed book should be valid")
	}
	crossed := good
	crossed.YesBid = 0.45
	if crossed.Valid() {
		t.Fatal("bid above ask must be invalid")
	}
	over := good
	over.NoAsk = 1.01
	if over.Valid() {
		t.Fatal("ask above 1 must be invalid")
	}
	negSize := good
	negSize.YesAskSize = -1
	if negSize.Valid() {
		t.Fatal("negative size must be invalid")
	}
}

func TestMarketIsBinary(t *testing.T) {
	m := Market{UpTokenID: "a", DownTokenID: "b"}
	if !m.IsBinary() {
		t.Fatal("distinct tokens should be binary")
	}
	m.DownTokenID = "a"
	if m.IsBinary() {
		t.Fatal("identical tokens must not be binary")
	}
	if (Market{}).IsBinary() {
		t.Fatal("empty tokens must not be binary")
	}
}
