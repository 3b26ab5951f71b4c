package demux

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
)

// NullKey is the reserved barcode key used for the no-match sink.
const NullKey = ""

// SinkRegistry is the C7 component: a read-only, post-construction mapping
// from barcode key (or NullKey) to a RecordSink. Constructed once at
// startup from configuration and closed exactly once after the run
// completes.
type SinkRegistry struct {
	sinks map[string]RecordSink
	order []string
}

// NewSinkRegistry builds a SinkRegistry from sinks, preserving the order of
// keys as given — that order is Sink Registry order, used by the Scheduler
// to decide which barcode to scan first.
func NewSinkRegistry(keys []string, sinks map[string]RecordSink) (*SinkRegistry, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("demux: sink registry requires at least one sink")
	}
	reg := &SinkRegistry{sinks: make(map[string]RecordSink, len(keys)), order: append([]string(nil), keys...)}
	for _, k := range keys {
		sink, ok := sinks[k]
		if !ok {
			return nil, fmt.Errorf("demux: no sink provided for registered key %q", k)
		}
		reg.sinks[k] = sink
	}
	return reg, nil
}

// Keys returns the registered barcode keys in Sink Registry (insertion)
// order.
func (r *SinkRegistry) Keys() []string { return append([]string(nil), r.order...) }

// Route returns the sink for key, or a *RoutingError if key is not
// registered.
func (r *SinkRegistry) Route(key string) (RecordSink, error) {
	sink, ok := r.sinks[key]
	if !ok {
		return nil, &RoutingError{Key: key}
	}
	return sink, nil
}

// CloseAll closes every registered sink exactly once, collecting the first
// error encountered (via errors.Once, the same single-failure convention
// used by the Scheduler) while still attempting to close every sink.
func (r *SinkRegistry) CloseAll(ctx context.Context) error {
	var once errors.Once
	for _, key := range r.order {
		once.Set(r.sinks[key].Close(ctx))
	}
	return once.Err()
}
