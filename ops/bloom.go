package ops

import (
	"crypto/md5"
	"crypto/sha256"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

type hashFunc func([]byte) []byte

var digests = map[string]hashFunc{
	"md5": func(b []byte) []byte {
		s := md5.Sum(b)
		return s[:]
	},
	"sha256": func(b []byte) []byte {
		s := sha256.Sum256(b)
		return s[:]
	},
	"xxh3": func(b []byte) []byte {
		s := xxh3.Hash128(b).Bytes()
		return s[:]
	},
	"blake3": func(b []byte) []byte {
		s := blake3.Sum256(b)
		return s[:]
	},
}

const (
	bloomGrowth    = 2
	bloomTightness = 0.9
)

// bloomChain is a scalable bloom filter: a list of filters where each new
// one doubles capacity and tightens its error rate, so the combined false
// positive rate stays under the target as the set grows. It never reports
// a false negative.
type bloomChain struct {
	layers []*bloomLayer
}

type bloomLayer struct {
	filter    *bloom.BloomFilter
	capacity  int
	count     int
	errorRate float64
}

func newBloomLayer(capacity int, errorRate float64) *bloomLayer {
	return &bloomLayer{
		filter:    bloom.NewWithEstimates(uint(capacity), errorRate),
		capacity:  capacity,
		errorRate: errorRate,
	}
}

func newBloomChain(capacity int, errorRate float64) *bloomChain {
	return &bloomChain{layers: []*bloomLayer{newBloomLayer(capacity, errorRate*(1-bloomTightness))}}
}

// Add inserts digest and reports whether it was probably present already.
func (c *bloomChain) Add(digest []byte) bool {
	for _, l := range c.layers {
		if l.filter.Test(digest) {
			return true
		}
	}
	last := c.layers[len(c.layers)-1]
	if last.count >= last.capacity {
		last = newBloomLayer(last.capacity*bloomGrowth, last.errorRate*bloomTightness)
		c.layers = append(c.layers, last)
	}
	last.filter.Add(digest)
	last.count++
	return false
}

// Len returns the number of distinct digests added.
func (c *bloomChain) Len() int {
	n := 0
	for _, l := range c.layers {
		n += l.count
	}
	return n
}
