package metric

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
)

// Built-in metric names.
const (
	NameRMSE         = "RMSE"
	NameMAE          = "MAE"
	NameLogloss      = "Logloss"
	NameAccuracy     = "Accuracy"
	NameMultiClass   = "MultiClass"
	NamePairLogit    = "PairLogit"
	NamePairAccuracy = "PairAccuracy"
)

// DefaultAccuracyBorder is the probability border used by Accuracy for a
// single-dimension approx.
const DefaultAccuracyBorder = 0.5

// probEpsilon keeps log-likelihoods finite.
const probEpsilon = 1e-15

// NewRMSE returns the root mean squared error.
func NewRMSE() *Func {
	return &Func{
		Name:     NameRMSE,
		Additive: true,
		Type:     PerObject,
		Doc: func(in Input, doc int) (float64, float64) {
			w := float64(in.Weight[doc])
			diff := in.Approx[0][doc] - float64(in.Target[doc])

			return w * diff * diff, w
		},
		Final: func(s Stats) float64 {
			return math.Sqrt(s.Mean())
		},
	}
}

// NewMAE returns the mean absolute error.
func NewMAE() *Func {
	return &Func{
		Name:     NameMAE,
		Additive: true,
		Type:     PerObject,
		Doc: func(in Input, doc int) (float64, float64) {
			w := float64(in.Weight[doc])

			return w * math.Abs(in.Approx[0][doc]-float64(in.Target[doc])), w
		},
	}
}

// NewLogloss returns the binary log-loss of sigmoid(approx) against targets in [0, 1].
func NewLogloss() *Func {
	return &Func{
		Name:     NameLogloss,
		Additive: true,
		Type:     PerObject,
		Doc: func(in Input, doc int) (float64, float64) {
			w := float64(in.Weight[doc])
			p := clampProb(sigmoid(in.Approx[0][doc]))
			t := float64(in.Target[doc])

			return -w * (t*math.Log(p) + (1-t)*math.Log(1-p)), w
		},
	}
}

// NewAccuracy returns the share of correctly classified documents. A single
// dimension approx is a binary classifier thresholded at border on the
// sigmoid scale; a wider approx is a multiclass argmax.
func NewAccuracy(border float64) *Func {
	name := NameAccuracy
	if border != DefaultAccuracyBorder {
		name = fmt.Sprintf("%s:border=%g", NameAccuracy, border)
	}

	return &Func{
		Name:     name,
		Additive: true,
		Type:     PerObject,
		Maximize: true,
		Doc: func(in Input, doc int) (float64, float64) {
			w := float64(in.Weight[doc])

			var predicted int
			if len(in.Approx) == 1 {
				if sigmoid(in.Approx[0][doc]) > border {
					predicted = 1
				}
			} else {
				predicted = argmax(in.Approx, doc)
			}

			if predicted == int(in.Target[doc]) {
				return w, w
			}

			return 0, w
		},
	}
}

// NewMultiClass returns the softmax cross-entropy where the target is a class index.
func NewMultiClass() *Func {
	return &Func{
		Name:     NameMultiClass,
		Additive: true,
		Type:     PerObject,
		Doc: func(in Input, doc int) (float64, float64) {
			w := float64(in.Weight[doc])
			maxApprox := in.Approx[argmax(in.Approx, doc)][doc]

			var sumExp float64
			for dim := range in.Approx {
				sumExp += math.Exp(in.Approx[dim][doc] - maxApprox)
			}

			class := int(in.Target[doc])
			if class < 0 || class >= len(in.Approx) {
				return w * -math.Log(probEpsilon), w
			}

			logProb := in.Approx[class][doc] - maxApprox - math.Log(sumExp)

			return -w * logProb, w
		},
	}
}

// NewPairLogit returns the pairwise logistic loss.
func NewPairLogit() *Func {
	return &Func{
		Name:     NamePairLogit,
		Additive: true,
		Type:     Pairwise,
		Pair: func(in Input, pair pool.Pair) (float64, float64) {
			w := float64(pair.Weight)
			margin := in.Approx[0][pair.Winner] - in.Approx[0][pair.Loser]

			return w * softplus(-margin), w
		},
	}
}

// NewPairAccuracy returns the weighted share of correctly ordered pairs.
// It is evaluated only on complete prediction vectors.
func NewPairAccuracy() *Func {
	return &Func{
		Name:     NamePairAccuracy,
		Additive: false,
		Type:     Pairwise,
		Maximize: true,
		Pair: func(in Input, pair pool.Pair) (float64, float64) {
			w := float64(pair.Weight)
			if in.Approx[0][pair.Winner] > in.Approx[0][pair.Loser] {
				return w, w
			}

			return 0, w
		},
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}

	return math.Log1p(math.Exp(x))
}

func clampProb(p float64) float64 {
	return max(probEpsilon, min(1-probEpsilon, p))
}

func argmax(approx [][]float64, doc int) int {
	best := 0

	for dim := 1; dim < len(approx); dim++ {
		if approx[dim][doc] > approx[best][doc] {
			best = dim
		}
	}

	return best
}
