package types

import "math"

const ratioTolerance = 1e-9

type SplitRatios struct {
	Train      float64
	Validation float64
	Test       float64
}

var DefaultSplitRatios = SplitRatios{Train: 0.90, Validation: 0.05, Test: 0.05}

func (r SplitRatios) Validate() error {
	for _, v := range []float64{r.Train, r.Validation, r.Test} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return &InvalidSplitRatioError{Train: r.Train, Validation: r.Validation, Test: r.Test}
		}
	}
	if math.Abs(r.Train+r.Validation+r.Test-1) > ratioTolerance {
		return &InvalidSplitRatioError{Train: r.Train, Validation: r.Validation, Test: r.Test}
	}
	return nil
}
