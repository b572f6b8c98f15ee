package scheduler

import "math/rand"

// coldStartWeight biases scheduling toward artifacts that have never been
// admitted: a sched_count of 0 is treated as if it were extraordinarily
// favored, guaranteeing cold artifacts get initial coverage before the
// 1/(1+n) falloff takes over for artifacts that have run at least once.
const coldStartWeight = 1e7

func schedCountWeight(count int) float64 {
	if count == 0 {
		return coldStartWeight
	}
	return 1.0 / (1.0 + float64(count))
}

// weightedChoice picks one index from weights using roulette-wheel
// selection. weights must be non-empty and sum to a positive value.
func weightedChoice(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return rng.Intn(len(weights))
	}
	r := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

func uniformChoice[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}

func uniformSampleWithReplacement[T any](rng *rand.Rand, items []T, k int) []T {
	out := make([]T, k)
	for i := range out {
		out[i] = items[rng.Intn(len(items))]
	}
	return out
}
