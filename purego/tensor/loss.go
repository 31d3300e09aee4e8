package tensor

import (
	"fmt"
	"math"
)

// IgnoreIndex marks target positions that contribute nothing to the loss.
const IgnoreIndex = -100

// CrossEntropy returns the mean negative log-likelihood of targets under
// softmax(logits) and the gradient of that mean with respect to logits.
// logits is viewed as [N, V] and targets has N entries.
func CrossEntropy(logits *Tensor, targets []int) (float32, *Tensor, error) {
	n, v := logits.Rows(), logits.Cols()
	if len(targets) != n {
		return 0, nil, fmt.Errorf("%w: %d targets for %d rows", ErrShapeMismatch, len(targets), n)
	}

	count := 0
	for _, tgt := range targets {
		if tgt == IgnoreIndex {
			continue
		}
		if tgt < 0 || tgt >= v {
			return 0, nil, fmt.Errorf("%w: target %d, vocab size %d", ErrTokenOutOfRange, tgt, v)
		}
		count++
	}
	if count == 0 {
		return 0, nil, fmt.Errorf("%w: every target is ignored", ErrBadBatch)
	}

	grad := NewTensor(logits.Shape...)
	inv := float32(1) / float32(count)

	var total float64
	for i, tgt := range targets {
		if tgt == IgnoreIndex {
			continue
		}
		row := logits.Row(i)
		g := grad.Row(i)

		maxVal := row[0]
		for _, x := range row[1:] {
			if x > maxVal {
				maxVal = x
			}
		}
		var sum float64
		for j, x := range row {
			e := math.Exp(float64(x - maxVal))
			g[j] = float32(e)
			sum += e
		}
		total += math.Log(sum) + float64(maxVal) - float64(row[tgt])

		// d(mean loss)/d logits = (softmax - onehot) / count
		scale := float32(1/sum) * inv
		for j := range g {
			g[j] *= scale
		}
		g[tgt] -= inv
	}

	return float32(total / float64(count)), grad, nil
}
