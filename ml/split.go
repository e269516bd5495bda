package ml

import (
	"math"
	"math/rand"
	"sort"
)

// TrainTestSplit shuffles 0..n-1 with a fixed seed and returns the train and
// test row indices, each in ascending order. The test side gets
// ceil(n*testRatio) rows but never all of them.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int) {
	if n <= 0 {
		return nil, nil
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	testSize := int(math.Ceil(float64(n)*testRatio - 1e-9))
	if testSize < 0 {
		testSize = 0
	}
	if testSize >= n {
		testSize = n - 1
	}

	test = append([]int(nil), perm[:testSize]...)
	train = append([]int(nil), perm[testSize:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test
}

// Subset gathers the rows at idx.
func Subset(features [][]float64, targets []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, r := range idx {
		xs[i] = features[r]
		ys[i] = targets[r]
	}
	return xs, ys
}
