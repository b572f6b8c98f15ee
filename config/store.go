package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// StoreOption allows future extension of store construction.
type StoreOption func(*VersionedStore)

// VersionedStore maintains an append-only log of versioned configurations in
// memory. A file or database adapter can wrap it for persistence.
type VersionedStore struct {
	mu       sync.RWMutex
	versions []*VersionedConfig // index = version-1
	audit    []*AuditRecord
}

// AuditRecord is one append-only audit entry written by Append.
type AuditRecord struct {
	Version     int64
	Hash        string
	Actor       string
	AppliedAt   time.Time
	Parent      int64
	DiffSummary string
}

// NewVersionedStore constructs an empty store.
func NewVersionedStore(opts ...StoreOption) *VersionedStore {
	vs := &VersionedStore{}
	for _, o := range opts {
		o(vs)
	}
	return vs
}

// NextVersion returns the next version number that would be assigned.
func (s *VersionedStore) NextVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.versions) + 1)
}

// ListAudit returns a snapshot copy of audit records.
func (s *VersionedStore) ListAudit() []*AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditRecord, len(s.audit))
	for i, rec := range s.audit {
		if rec == nil {
			continue
		}
		c := *rec
		out[i] = &c
	}
	return out
}

// Get returns the VersionedConfig for a version number (1-based).
func (s *VersionedStore) Get(version int64) (*VersionedConfig, bool) {
	if version <= 0 {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(version) > len(s.versions) {
		return nil, false
	}
	vc := s.versions[version-1]
	return cloneVersioned(vc), true
}

// Head returns the latest versioned config.
func (s *VersionedStore) Head() (*VersionedConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.versions) == 0 {
		return nil, false
	}
	return cloneVersioned(s.versions[len(s.versions)-1]), true
}

var ErrHashMismatch = errors.New("config: hash mismatch")

// Append stores a new versioned config assigning the next version number.
func (s *VersionedStore) Append(spec *EngineConfigSpec, actor, diff string, parentExpected int64) (*VersionedConfig, error) {
	if spec == nil {
		return nil, errors.New("config: nil spec")
	}
	raw, err := canonicalJSON(spec)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(raw)
	hash := hex.EncodeToString(h[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	version := int64(len(s.versions) + 1)
	var parent int64
	if len(s.versions) > 0 {
		parent = s.versions[len(s.versions)-1].Version
	}
	if parent != parentExpected && parentExpected != 0 {
		return nil, errors.New("config: parent version mismatch")
	}
	vc := &VersionedConfig{
		Version:     version,
		Spec:        cloneSpec(spec),
		Hash:        hash,
		AppliedAt:   time.Now().UTC(),
		Actor:       actor,
		Parent:      parent,
		DiffSummary: diff,
	}
	s.versions = append(s.versions, vc)
	s.audit = append(s.audit, &AuditRecord{Version: version, Hash: hash, Actor: actor, AppliedAt: vc.AppliedAt, Parent: parent, DiffSummary: diff})
	return cloneVersioned(vc), nil
}

// Verify recomputes the hash for a stored version and returns an error if it
// no longer matches (i.e. the in-memory record was mutated outside Append).
func (s *VersionedStore) Verify(version int64) error {
	vc, ok := s.Get(version)
	if !ok {
		return errors.New("config: version not found")
	}
	raw, err := canonicalJSON(vc.Spec)
	if err != nil {
		return err
	}
	h := sha256.Sum256(raw)
	hash := hex.EncodeToString(h[:])
	if hash != vc.Hash {
		return ErrHashMismatch
	}
	return nil
}

func canonicalJSON(spec *EngineConfigSpec) ([]byte, error) {
	return json.Marshal(spec)
}

func cloneSpec(spec *EngineConfigSpec) *EngineConfigSpec {
	if spec == nil {
		return nil
	}
	c := *spec
	if spec.Global != nil {
		g := *spec.Global
		if spec.Global.RetryPolicy != nil {
			rp := *spec.Global.RetryPolicy
			g.RetryPolicy = &rp
		}
		c.Global = &g
	}
	if spec.Scheduling != nil {
		sc := *spec.Scheduling
		if sc.ArtifactRules != nil {
			sc.ArtifactRules = cloneArtifactRulesMap(sc.ArtifactRules)
		}
		if sc.RescheduleRules != nil {
			rr := *sc.RescheduleRules
			sc.RescheduleRules = &rr
		}
		if sc.AdmissionRate != nil {
			ar := *sc.AdmissionRate
			if ar.LabelDelays != nil {
				ld := make(map[string]time.Duration, len(ar.LabelDelays))
				for k, v := range ar.LabelDelays {
					ld[k] = v
				}
				ar.LabelDelays = ld
			}
			sc.AdmissionRate = &ar
		}
		c.Scheduling = &sc
	}
	if spec.Sampling != nil {
		sa := *spec.Sampling
		if len(sa.SampleSteps) > 0 {
			sa.SampleSteps = cloneStringSlice(sa.SampleSteps)
		}
		if sa.ConditionalActions != nil {
			m := make(map[string]string, len(sa.ConditionalActions))
			for k, v := range sa.ConditionalActions {
				m[k] = v
			}
			sa.ConditionalActions = m
		}
		c.Sampling = &sa
	}
	if spec.Collection != nil {
		co := *spec.Collection
		if co.RoutingRules != nil {
			m := make(map[string]string, len(co.RoutingRules))
			for k, v := range co.RoutingRules {
				m[k] = v
			}
			co.RoutingRules = m
		}
		if len(co.QualityGates) > 0 {
			co.QualityGates = cloneStringSlice(co.QualityGates)
		}
		c.Collection = &co
	}
	if spec.Policies != nil {
		p := *spec.Policies
		if p.SchedulingRules != nil {
			sr := make([]*PolicyRuleSpec, 0, len(p.SchedulingRules))
			for _, r := range p.SchedulingRules {
				if r == nil {
					continue
				}
				rr := *r
				sr = append(sr, &rr)
			}
			p.SchedulingRules = sr
		}
		if p.EnabledFlags != nil {
			ef := make(map[string]bool, len(p.EnabledFlags))
			for k, v := range p.EnabledFlags {
				ef[k] = v
			}
			p.EnabledFlags = ef
		}
		c.Policies = &p
	}
	if spec.Rollout != nil {
		r := *spec.Rollout
		if len(r.CohortLabels) > 0 {
			r.CohortLabels = cloneStringSlice(r.CohortLabels)
		}
		if len(r.CohortLabelGlobs) > 0 {
			r.CohortLabelGlobs = cloneStringSlice(r.CohortLabelGlobs)
		}
		c.Rollout = &r
	}
	return &c
}

func cloneArtifactRulesMap(m map[string]*ArtifactSchedulingRule) map[string]*ArtifactSchedulingRule {
	out := make(map[string]*ArtifactSchedulingRule, len(m))
	for k, v := range m {
		out[k] = cloneArtifactRule(v)
	}
	return out
}

func cloneVersioned(vc *VersionedConfig) *VersionedConfig {
	if vc == nil {
		return nil
	}
	c := *vc
	c.Spec = cloneSpec(vc.Spec)
	return &c
}
