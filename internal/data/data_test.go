package data

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"aitrader/internal/domain"
)

func mkBars(symbol string, volumes ...int64) []domain.Bar {
	bars := make([]domain.Bar, 0, len(volumes))
	day := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	for i, v := range volumes {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: day.AddDate(0, 0, i),
			Close:     decimal.NewFromInt(100),
			Volume:    v,
		})
	}
	return bars
}

func TestAvgVolume(t *testing.T) {
	bars := mkBars("AAPL", 100, 200, 300, 400)

	if got := AvgVolume(bars, 4); !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("AvgVolume(4) = %s, want 250", got)
	}
	// Only the trailing window counts.
	if got := AvgVolume(bars, 2); !got.Equal(decimal.NewFromInt(350)) {
		t.Errorf("AvgVolume(2) = %s, want 350", got)
	}
	// Fewer bars than requested still averages what exists.
	if got := AvgVolume(bars, 10); !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("AvgVolume(10) = %s, want 250", got)
	}
	if got := AvgVolume(nil, 5); !got.IsZero() {
		t.Errorf("AvgVolume(nil) = %s, want 0", got)
	}
}

func TestStaticProviderTrailingWindow(t *testing.T) {
	p := NewStaticProvider()
	p.SetBars("AAPL", mkBars("AAPL", 1, 2, 3, 4, 5))

	bars, err := p.GetDailyBars(context.Background(), "AAPL", 3)
	if err != nil {
		t.Fatalf("GetDailyBars() returned error: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("len(bars) = %d, want 3", len(bars))
	}
	if bars[0].Volume != 3 || bars[2].Volume != 5 {
		t.Errorf("window = [%d..%d], want [3..5]", bars[0].Volume, bars[2].Volume)
	}
}

func TestStaticProviderUnknownSymbol(t *testing.T) {
	p := NewStaticProvider()
	if _, err := p.GetDailyBars(context.Background(), "ZZZZ", 10); err == nil {
		t.Error("GetDailyBars() for unknown symbol did not return an error")
	}
}

func TestSyntheticBarsDeterministic(t *testing.T) {
	a := SyntheticBars("AAPL", 50, 180, 7)
	b := SyntheticBars("AAPL", 50, 180, 7)

	if len(a) != 50 {
		t.Fatalf("len = %d, want 50", len(a))
	}
	for i := range a {
		if !a[i].Close.Equal(b[i].Close) || a[i].Volume != b[i].Volume {
			t.Fatalf("bar %d differs across identical seeds", i)
		}
	}
	for i := 1; i < len(a); i++ {
		if !a[i].Timestamp.After(a[i-1].Timestamp) {
			t.Fatalf("bars not in ascending timestamp order at %d", i)
		}
	}
}
