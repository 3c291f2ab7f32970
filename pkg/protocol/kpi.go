package protocol

import (
	"math"
	"strconv"
	"strings"
)

// Headline KPI values reported when no measurement has been recorded yet.
const (
	DefaultMRR         = 120000.0
	DefaultBurn        = 80000.0
	DefaultRunway      = 9.0
	DefaultPipeline    = 850000.0
	DefaultWinRate     = 35.0
	DefaultUtilization = 72.0
)

var kpiDefaults = map[string]float64{
	"mrr":         DefaultMRR,
	"burn":        DefaultBurn,
	"runway":      DefaultRunway,
	"pipeline":    DefaultPipeline,
	"win_rate":    DefaultWinRate,
	"utilization": DefaultUtilization,
}

// KPIOr returns metrics[key], or the headline default for key when it is
// absent. Keys without a default yield 0.
func KPIOr(metrics map[string]float64, key string) float64 {
	if v, ok := metrics[key]; ok {
		return v
	}
	return kpiDefaults[key]
}

// FormatNumber formats v without exponent or trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatMoney formats v as whole dollars with thousands separators.
func FormatMoney(v float64) string {
	s := strconv.FormatInt(int64(math.Round(math.Abs(v))), 10)
	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
