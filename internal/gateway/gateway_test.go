package gateway

import (
	"testing"

	"livestratexec/internal/model"
)

func TestReplayBufferPushAndRange(t *testing.T) {
	rb := NewReplayBuffer(3)
	rb.Push(1, []byte("a"))
	rb.Push(2, []byte("b"))
	rb.Push(3, []byte("c"))
	rb.Push(4, []byte("d")) // overwrites seq 1

	entries := rb.Range(1, 10)
	if len(entries) != 3 {
		t.Fatalf("expected 3 surviving entries, got %d", len(entries))
	}
	if entries[0].Seq != 2 || entries[len(entries)-1].Seq != 4 {
		t.Errorf("unexpected entry order: %+v", entries)
	}
}

func TestHubChannelNames(t *testing.T) {
	h := NewHub(nil, "tBTCUSD", "1m")
	if got := h.CandleChannel(); got != "pub:candle:tBTCUSD:1m" {
		t.Errorf("unexpected candle channel: %s", got)
	}
	if got := h.ResultChannel(); got != "pub:result:tBTCUSD:1m" {
		t.Errorf("unexpected result channel: %s", got)
	}
}

func TestHubGetLatestAllReflectsBroadcasts(t *testing.T) {
	h := NewHub(nil, "tBTCUSD", "1m")
	h.broadcast(h.CandleChannel(), []byte(`{"close":100}`))

	latest := h.GetLatestAll()
	if len(latest) != 1 {
		t.Fatalf("expected 1 channel tracked, got %d", len(latest))
	}
	if _, ok := latest[h.CandleChannel()]; !ok {
		t.Errorf("expected candle channel in latest map")
	}
}

type fakeHistory struct {
	candles []model.Candle
}

func (f *fakeHistory) ReadCandles(symbol, tf string, afterMTS int64) ([]model.Candle, error) {
	return f.candles, nil
}

func TestCandleHistoryInterfaceSatisfiedByFake(t *testing.T) {
	var h CandleHistory = &fakeHistory{}
	if _, err := h.ReadCandles("tBTCUSD", "1m", 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
