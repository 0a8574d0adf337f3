package train

import (
	"math"
	"math/rand"
	"sort"
)

// Split partitions sample indices 0..n-1 into a training and a validation
// set. floor(n·fraction) samples are held out, chosen by a permutation
// drawn from seed, so the same seed always yields the same partition. Both
// index lists are returned in ascending order.
func Split(n int, fraction float64, seed int64) (train, valid []int) {
	nValid := int(math.Floor(float64(n) * fraction))
	if nValid >= n {
		nValid = n - 1
	}
	if nValid < 0 {
		nValid = 0
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	valid = append([]int(nil), perm[:nValid]...)
	train = append([]int(nil), perm[nValid:]...)
	sort.Ints(valid)
	sort.Ints(train)
	return train, valid
}
