// Package charts renders ledger aggregates as PNG images.
package charts

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fintrack/internal/ledger"
)

var (
	incomeColor  = drawing.Color{R: 0x2e, G: 0xcc, B: 0x71, A: 0xff}
	expenseColor = drawing.Color{R: 0xe7, G: 0x4c, B: 0x3c, A: 0xff}
)

// RenderDailySeries draws income vs expenses over calendar dates as a PNG
// line chart. Returns nil when the series has fewer than two points, since a
// line needs two.
func RenderDailySeries(series []ledger.DayBucket) ([]byte, error) {
	if len(series) < 2 {
		return nil, nil
	}

	xValues := make([]time.Time, len(series))
	incomeValues := make([]float64, len(series))
	expenseValues := make([]float64, len(series))
	for i, bucket := range series {
		day, err := time.Parse("2006-01-02", bucket.Date)
		if err != nil {
			return nil, fmt.Errorf("parse series date %q: %w", bucket.Date, err)
		}
		xValues[i] = day
		incomeValues[i] = bucket.Income
		expenseValues[i] = bucket.Expenses
	}

	graph := chart.Chart{
		Width:  1200,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
			Style: chart.Style{
				FontSize: 12,
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.2f", v.(float64))
			},
			Style: chart.Style{
				FontSize: 12,
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Income",
				XValues: xValues,
				YValues: incomeValues,
				Style: chart.Style{
					StrokeColor: incomeColor,
					StrokeWidth: 2,
				},
			},
			chart.TimeSeries{
				Name:    "Expenses",
				XValues: xValues,
				YValues: expenseValues,
				Style: chart.Style{
					StrokeColor: expenseColor,
					StrokeWidth: 2,
				},
			},
		},
	}

	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render daily series chart: %w", err)
	}
	return buf.Bytes(), nil
}
