package peripheral

import (
	"slices"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SubscriptionSet maps a characteristic to the centrals subscribed to it.
// It is owned by the executor and not safe for concurrent use.
type SubscriptionSet struct {
	m map[uuid.UUID]map[CentralID]struct{}
}

func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{m: make(map[uuid.UUID]map[CentralID]struct{})}
}

// Add records a subscription and reports whether it is new.
func (s *SubscriptionSet) Add(char uuid.UUID, central CentralID) bool {
	set, ok := s.m[char]
	if !ok {
		set = make(map[CentralID]struct{})
		s.m[char] = set
	}
	if _, dup := set[central]; dup {
		return false
	}
	set[central] = struct{}{}
	return true
}

// Remove drops a subscription and reports whether it existed.
func (s *SubscriptionSet) Remove(char uuid.UUID, central CentralID) bool {
	set, ok := s.m[char]
	if !ok {
		return false
	}
	if _, ok := set[central]; !ok {
		return false
	}
	delete(set, central)
	if len(set) == 0 {
		delete(s.m, char)
	}
	return true
}

// Subscribers returns the centrals subscribed to char, sorted.
func (s *SubscriptionSet) Subscribers(char uuid.UUID) []CentralID {
	set := s.m[char]
	out := make([]CentralID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *SubscriptionSet) Count(char uuid.UUID) int {
	return len(s.m[char])
}

func (s *SubscriptionSet) Clear() {
	clear(s.m)
}

// handleSubscribe runs on the executor.
func (p *Peripheral) handleSubscribe(char uuid.UUID, central CentralID) {
	log := p.logger.WithFields(logrus.Fields{
		"central":        central,
		"characteristic": ShortUUID(char),
	})

	if p.catalog == nil || char != p.catalog.Radiation.UUID {
		log.Debug("Ignoring subscription outside the published telemetry characteristic")
		return
	}

	if !p.subs.Add(char, central) {
		log.Debug("Central already subscribed")
		return
	}

	if err := p.transport.SetDesiredConnectionLatency(LatencyLow, central); err != nil {
		log.WithError(err).Debug("Low connection latency request failed")
	}

	if !p.telemetry.Running() {
		p.telemetry.Start()
	}

	log.Info("Central subscribed")
	p.notifyf("Central %s subscribed", central)
}

// handleUnsubscribe runs on the executor.
func (p *Peripheral) handleUnsubscribe(char uuid.UUID, central CentralID) {
	if !p.subs.Remove(char, central) {
		p.logger.WithFields(logrus.Fields{
			"central":        central,
			"characteristic": ShortUUID(char),
		}).Debug("Ignoring unsubscribe from a central that was not subscribed")
		return
	}

	p.logger.WithField("central", central).Info("Central unsubscribed")
	p.notifyf("Central %s cancelled subscription", central)

	if p.catalog != nil && char == p.catalog.Radiation.UUID && p.subs.Count(char) == 0 {
		p.telemetry.Stop()
	}
}

// dropSubscribers clears every subscription, reporting each radiation
// subscriber as cancelled.
func (p *Peripheral) dropSubscribers() {
	if p.catalog != nil {
		for _, central := range p.subs.Subscribers(p.catalog.Radiation.UUID) {
			p.logger.WithField("central", central).Info("Central unsubscribed")
			p.notifyf("Central %s cancelled subscription", central)
		}
	}
	p.subs.Clear()
}
