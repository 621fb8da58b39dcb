package formulas

// Direction summarises where the latest value sits against its average.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend describes a short series of observations, oldest first.
type Trend struct {
	Samples    int
	Latest     float64
	Mean       float64
	StdDev     float64
	SMA        *float64 // nil when the window is not full
	Change     float64  // fractional change from first to latest
	Volatility float64  // stddev of step-to-step returns, zero below three samples
	Direction  Direction
}

// flatBand is the relative distance from the mean still reported as flat.
const flatBand = 0.005

// CalculateTrend summarises values with an SMA over window. It returns nil
// for an empty series.
func CalculateTrend(values []float64, window int) *Trend {
	if len(values) == 0 {
		return nil
	}

	latest := values[len(values)-1]
	t := &Trend{
		Samples:   len(values),
		Latest:    latest,
		Mean:      Mean(values),
		StdDev:    StdDev(values),
		SMA:       CalculateSMA(values, window),
		Direction: DirectionFlat,
	}
	t.Volatility = StdDev(CalculateReturns(values))

	if first := values[0]; first != 0 {
		t.Change = (latest - first) / first
	}

	ref := t.Mean
	if t.SMA != nil {
		ref = *t.SMA
	}
	if ref != 0 {
		switch d := (latest - ref) / ref; {
		case d > flatBand:
			t.Direction = DirectionUp
		case d < -flatBand:
			t.Direction = DirectionDown
		}
	}
	return t
}
