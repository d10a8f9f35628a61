// Package bloom builds the engine's host prefilter: a Bloom filter over the
// hosts that have host-scoped rules, used to skip store reads for every
// other host.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/navlock/internal/navlock/repos/ruleengine"
)

type hostFilterFactory struct {
	sizer ruleengine.BloomSizer
}

// NewFactory returns a HostFilterFactory that sizes each filter for the
// snapshot it is built from.
func NewFactory() ruleengine.HostFilterFactory {
	return hostFilterFactory{sizer: NewSizer()}
}

// Build returns a filter holding hosts at the target false-positive rate.
func (f hostFilterFactory) Build(hosts []string, fpRate float64) ruleengine.HostFilter {
	m, k := f.sizer.Size(uint64(len(hosts)), fpRate)
	bf := bitsbloom.New(uint(m), uint(k))
	for _, h := range hosts {
		bf.AddString(h)
	}
	return &hostFilter{bf: bf, hosts: len(hosts)}
}
