package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrPriceNotPositive = errors.New("candle price not positive")
	ErrPriceNotFinite   = errors.New("candle price not finite")
	ErrHighBelowLow     = errors.New("candle high below low")
	ErrPriceOutOfRange  = errors.New("candle open/close outside [low, high]")
	ErrNegativeVolume   = errors.New("candle volume negative")
)

type Candle struct {
	Datetime time.Time `json:"datetime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Validate rejects malformed bars. Bad data is never repaired: the caller
// drops the bar and surfaces the error.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s", ErrPriceNotFinite, c.Datetime.Format(time.RFC3339))
		}
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: %s o=%v h=%v l=%v c=%v",
			ErrPriceNotPositive, c.Datetime.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: %s h=%v l=%v", ErrHighBelowLow, c.Datetime.Format(time.RFC3339), c.High, c.Low)
	}
	if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("%w: %s o=%v h=%v l=%v c=%v",
			ErrPriceOutOfRange, c.Datetime.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: %s v=%v", ErrNegativeVolume, c.Datetime.Format(time.RFC3339), c.Volume)
	}
	return nil
}
