// Package memory implements the memory manager & policy layer of spec.md
// §4.B: semantic operations over internal/store's raw CRUD, enforcing
// TTL-by-type, exponential freshness decay, and soft-forget. Grounded on
// the teacher's MaintenanceConfig / MaintenanceCleanup policy knobs
// (internal/store/local_core.go) generalized from an access-count-driven
// archival policy to the spec's age/confidence/relevance composite score.
package memory

import (
	"math"

	"github.com/membria/membria-core/internal/config"
)

// Policy is the set of tunable knobs governing TTL, freshness decay, and
// hard-delete eligibility (§4.B).
type Policy struct {
	DefaultTTLDays  int
	EpisodicTTLDays int
	SemanticTTLDays int
	ProceduralTTLDays int
	HalfLifeDays    float64
	MinConfidence   float64
	AllowHardDelete bool
}

// DefaultPolicy mirrors the §4.B defaults: episodic=180d, semantic=365d,
// procedural=720d, default=365d, half-life=180d, no hard delete.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTLDays:    365,
		EpisodicTTLDays:   180,
		SemanticTTLDays:   365,
		ProceduralTTLDays: 720,
		HalfLifeDays:      180,
		MinConfidence:     0.2,
		AllowHardDelete:   false,
	}
}

// PolicyFromConfig overlays configured overrides onto DefaultPolicy.
func PolicyFromConfig(cfg *config.Store) Policy {
	p := DefaultPolicy()
	if cfg == nil {
		return p
	}
	p.DefaultTTLDays = cfg.GetInt("memory.default_ttl_days", p.DefaultTTLDays)
	p.HalfLifeDays = cfg.GetFloat("memory.half_life_days", p.HalfLifeDays)
	p.MinConfidence = cfg.GetFloat("memory.min_confidence", p.MinConfidence)
	p.AllowHardDelete = cfg.GetBool("memory.allow_hard_delete", p.AllowHardDelete)
	return p
}

// TTLDaysForType resolves the TTL for a memory type, defaulting to
// DefaultTTLDays when memoryType is absent or unrecognized (§4.B).
func (p Policy) TTLDaysForType(memoryType string) int {
	switch memoryType {
	case "episodic":
		return p.EpisodicTTLDays
	case "semantic":
		return p.SemanticTTLDays
	case "procedural":
		return p.ProceduralTTLDays
	default:
		return p.DefaultTTLDays
	}
}

// Freshness computes exp(-ageDays/halfLifeDays), clamping to 0 once
// ageDays reaches ttlDays (§4.B).
func (p Policy) Freshness(ageDays float64, ttlDays int) float64 {
	if ttlDays > 0 && ageDays >= float64(ttlDays) {
		return 0
	}
	halfLife := p.HalfLifeDays
	if halfLife <= 0 {
		halfLife = 180
	}
	return math.Exp(-ageDays / halfLife)
}

// ShouldForget reports whether a memory item has outlived its TTL.
func (p Policy) ShouldForget(ageDays float64, ttlDays int) bool {
	return ttlDays > 0 && ageDays >= float64(ttlDays)
}

// clamp01 restricts x to [0,1], used by every factor of CompositeScore.
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// CompositeScore computes relevance * confidence * freshness * (0.5 +
// 0.5*impact), each factor clamped to [0,1] before multiplying (§4.B).
func CompositeScore(relevance, confidence, freshness, impact float64) float64 {
	r := clamp01(relevance)
	c := clamp01(confidence)
	f := clamp01(freshness)
	i := clamp01(impact)
	return r * c * f * (0.5 + 0.5*i)
}
