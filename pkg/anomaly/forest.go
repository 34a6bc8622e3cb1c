package anomaly

import (
	"math"
	"math/rand/v2"
)

const eulerGamma = 0.5772156649

// forest is an isolation forest over one-dimensional samples.
//
// Each tree is grown on a subsample drawn without replacement. A node is split
// at a uniformly random value in [min, max) of its samples until a node holds a
// single distinct value or the depth limit ceil(log2(subsample)) is reached.
// Points that need few splits to be isolated get a score close to 1.
type forest struct {
	trees      []*isolationNode
	sampleSize int
}

type isolationNode struct {
	split float64
	left  *isolationNode
	right *isolationNode
	size  int
	leaf  bool
}

// growForest builds numTrees trees from data. rng is the only source of
// randomness, so a fixed seed yields identical forests.
func growForest(data []float64, numTrees, maxSamples int, rng *rand.Rand) *forest {
	sampleSize := min(maxSamples, len(data))
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	f := &forest{
		trees:      make([]*isolationNode, 0, numTrees),
		sampleSize: sampleSize,
	}

	scratch := make([]float64, len(data))
	for range numTrees {
		copy(scratch, data)
		sample := subsample(scratch, sampleSize, rng)
		f.trees = append(f.trees, growTree(sample, 0, maxDepth, rng))
	}

	return f
}

// subsample shuffles the first n positions of data in place (partial
// Fisher-Yates) and returns a copy of them.
func subsample(data []float64, n int, rng *rand.Rand) []float64 {
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(data)-i)
		data[i], data[j] = data[j], data[i]
	}
	out := make([]float64, n)
	copy(out, data[:n])
	return out
}

func growTree(data []float64, depth, maxDepth int, rng *rand.Rand) *isolationNode {
	if len(data) <= 1 || depth >= maxDepth {
		return &isolationNode{size: len(data), leaf: true}
	}

	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo == hi {
		return &isolationNode{size: len(data), leaf: true}
	}

	split := lo + rng.Float64()*(hi-lo)

	var left, right []float64
	for _, v := range data {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &isolationNode{
		split: split,
		left:  growTree(left, depth+1, maxDepth, rng),
		right: growTree(right, depth+1, maxDepth, rng),
		size:  len(data),
	}
}

// score returns 2^(-E[h(x)]/c(ψ)) where h is the path length of x and ψ the
// subsample size.
func (f *forest) score(x float64) float64 {
	total := 0.0
	for _, t := range f.trees {
		total += pathLength(t, x, 0)
	}
	avg := total / float64(len(f.trees))

	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avg/c)
}

func pathLength(n *isolationNode, x float64, depth int) float64 {
	for !n.leaf {
		if x < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	harmonic := math.Log(float64(n-1)) + eulerGamma
	return 2*harmonic - 2*float64(n-1)/float64(n)
}
