// Package fingerprint computes the canonical identity of a recurring
// anomaly: the triple (skill, metric, direction), plus a family
// identity that ignores direction so "above threshold" and "below
// threshold" readings of the same (skill, metric) share suppression
// and rejection-tracking state.
//
// Hashing follows the same fnv-based approach the pack uses for
// stable, allocation-light keys (see the Stable Bloom Filter
// deduplicator other collector pipelines in this codebase's lineage
// use); here it is exact rather than probabilistic, since the queue
// needs a real identity, not a membership test.
package fingerprint

import (
	"errors"
	"hash/fnv"
	"strconv"

	"github.com/rodgon/aegis/pkg/domain"
)

// ErrInvalidAnomaly is returned when an anomaly's details carry no
// metric. Value and EWMA are plain float64 fields, so a zero reading is
// accepted as a reading; neither field is checked for absence.
var ErrInvalidAnomaly = errors.New("fingerprint: anomaly missing metric")

// Fingerprint is the canonical identity of a recurring anomaly.
type Fingerprint struct {
	Skill     domain.Skill
	Metric    domain.Metric
	Direction domain.Direction
}

// New constructs a Fingerprint directly from its components.
func New(skill domain.Skill, metric domain.Metric, direction domain.Direction) Fingerprint {
	return Fingerprint{Skill: skill, Metric: metric, Direction: direction}
}

// FromAnomaly derives a Fingerprint from an anomaly event, computing
// direction from sign(value - ewma); a value equal to ewma counts as
// below. It returns ErrInvalidAnomaly only when the details' metric is
// empty; value and ewma are not checked.
func FromAnomaly(a domain.Anomaly) (Fingerprint, error) {
	if a.Details.Metric == "" {
		return Fingerprint{}, ErrInvalidAnomaly
	}
	return Fingerprint{
		Skill:     a.Skill,
		Metric:    a.Details.Metric,
		Direction: directionOf(a.Details.Value, a.Details.EWMA),
	}, nil
}

func directionOf(value, ewma float64) domain.Direction {
	if value > ewma {
		return domain.DirectionAbove
	}
	return domain.DirectionBelow
}

// Hash is a deterministic identity of the full triple, used as the
// queue's dedup key: FNV-1a over the raw bytes of skill, metric and
// direction, separated by NUL bytes. The same triple always yields the
// same value; nothing here relies on that across processes.
func (fp Fingerprint) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(string(fp.Skill)))
	h.Write([]byte{0})
	h.Write([]byte(string(fp.Metric)))
	h.Write([]byte{0})
	h.Write([]byte(string(fp.Direction)))
	return h.Sum64()
}

// FamilyHash is a deterministic identity over (skill, metric) only —
// two fingerprints that differ only in direction share a FamilyHash.
// Used for suppression and rejection tracking.
func (fp Fingerprint) FamilyHash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(string(fp.Skill)))
	h.Write([]byte{0})
	h.Write([]byte(string(fp.Metric)))
	return h.Sum64()
}

// String renders a human-readable identity, useful in signal payloads
// and log lines.
func (fp Fingerprint) String() string {
	return string(fp.Skill) + "/" + string(fp.Metric) + "/" + string(fp.Direction)
}

// HashString renders Hash as a lowercase hex string without leading
// zeros (so its length varies), convenient as a
// map key or log field when a uint64 isn't ergonomic.
func (fp Fingerprint) HashString() string {
	return strconv.FormatUint(fp.Hash(), 16)
}
