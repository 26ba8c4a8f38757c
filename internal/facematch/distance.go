package facematch

import "math"

// EuclideanDistance returns the L2 distance between two descriptors.
// Both must have DescriptorSize components.
func EuclideanDistance(a, b Descriptor) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return euclidean(a, b), nil
}

func euclidean(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
