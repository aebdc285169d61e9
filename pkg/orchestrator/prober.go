package orchestrator

import (
	"context"

	"github.com/pagelens/pagelens/pkg/capability"
	"github.com/pagelens/pagelens/pkg/logging"
)

// Prober answers whether a capability is usable right now. It is stateless
// and side-effect free: availability is recomputed on every call because a
// model download can complete between two requests.
type Prober struct {
	host capability.Host
	log  *logging.Logger
}

// NewProber creates a prober over the given host.
func NewProber(host capability.Host, log *logging.Logger) *Prober {
	if log == nil {
		log = logging.Discard("prober")
	}
	return &Prober{host: host, log: log}
}

// Probe returns the capability's availability. A host that does not expose
// the capability at all, or errors while answering, reports Unavailable.
func (p *Prober) Probe(ctx context.Context, kind capability.Kind) capability.Availability {
	if !p.host.Supports(kind) {
		return capability.Unavailable
	}
	avail, err := p.host.Availability(ctx, kind)
	if err != nil {
		p.log.Warnf("availability query for %s failed: %v", kind, err)
		return capability.Unavailable
	}
	return avail
}

// Usable decides whether an acquisition may proceed. A capability that needs
// a one-time download is only usable when the triggering call carries a
// direct user gesture. The returned error distinguishes the refusal reasons
// for diagnostics.
func (p *Prober) Usable(ctx context.Context, kind capability.Kind, userGesture bool) error {
	if !p.host.Supports(kind) {
		p.log.Infof("%s: not exposed by host", kind)
		return ErrUnsupported
	}
	switch avail := p.Probe(ctx, kind); avail {
	case capability.Available:
		return nil
	case capability.NeedsDownload:
		if userGesture {
			return nil
		}
		p.log.Infof("%s: needs download but no user gesture present", kind)
		return ErrNeedsGesture
	default:
		p.log.Infof("%s: unavailable on this device", kind)
		return ErrUnavailable
	}
}
