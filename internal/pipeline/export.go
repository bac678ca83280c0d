package pipeline

import (
	"github.com/lemony-ai/cascadeflow-sub010/internal/metrics"
)

// FireEvent exposes the pipeline's metrics dispatch to the streaming engine
// so both entry points report through the same Manager (spec §4.10).
func (p *Pipeline) FireEvent(event metrics.Event, payload metrics.Payload) {
	p.fire(event, payload)
}
