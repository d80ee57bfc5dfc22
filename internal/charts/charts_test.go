package charts

import (
	"bytes"
	"testing"

	"fintrack/internal/ledger"
)

func TestRenderDailySeries(t *testing.T) {
	series := []ledger.DayBucket{
		{Date: "2024-01-01", Income: 100, Expenses: 40},
		{Date: "2024-01-02", Income: 10, Expenses: 0},
		{Date: "2024-01-03", Income: 0, Expenses: 25},
	}

	png, err := RenderDailySeries(series)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("expected PNG bytes")
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestRenderTooFewPoints(t *testing.T) {
	png, err := RenderDailySeries([]ledger.DayBucket{{Date: "2024-01-01", Income: 1}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if png != nil {
		t.Error("a single bucket cannot make a line chart")
	}

	png, err = RenderDailySeries(nil)
	if err != nil || png != nil {
		t.Errorf("empty series should render nothing: %v %v", png, err)
	}
}

func TestRenderRejectsBadDate(t *testing.T) {
	_, err := RenderDailySeries([]ledger.DayBucket{
		{Date: "January 1st"},
		{Date: "2024-01-02"},
	})
	if err == nil {
		t.Error("expected error for non-canonical date")
	}
}
