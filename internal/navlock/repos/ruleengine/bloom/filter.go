package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// hostFilter is filled once by Build and then only read, so lookups take no lock.
type hostFilter struct {
	bf    *bitsbloom.BloomFilter
	hosts int
}

// MightHaveRules never reports false for a host given to Build. An empty
// filter reports false for every host.
func (f *hostFilter) MightHaveRules(host string) bool {
	return f.hosts > 0 && f.bf.TestString(host)
}

func (f *hostFilter) Len() int { return f.hosts }
