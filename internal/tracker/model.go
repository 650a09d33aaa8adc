package tracker

import (
	"time"

	"netmonitor/pkg/models"
)

// Options configures a new Model.
type Options struct {
	StartedAt time.Time
	// Diagnostic enables the unrecognized-connection record.
	Diagnostic bool
	// Excluded names are hidden from reports but still tracked.
	Excluded []string
}

// ProcessRecord is the accumulated address history of one process name.
type ProcessRecord struct {
	Name         string
	Sources      []string
	Destinations []string
}

type processRecord struct {
	sources      *orderedSet
	destinations *orderedSet
}

// TrackResult reports which parts of a Track call were new.
type TrackResult struct {
	NewProcess     bool
	NewSource      bool
	NewDestination bool
}

// Changed reports whether the call modified the model.
func (r TrackResult) Changed() bool {
	return r.NewProcess || r.NewSource || r.NewDestination
}

// Model accumulates which processes talked to which addresses.
// It only ever grows. It is owned by a single goroutine and is not
// safe for concurrent use.
type Model struct {
	startedAt    time.Time
	lastUpdated  time.Time
	tracked      []string
	records      map[string]*processRecord
	destOwners   map[string]struct{}
	unnamed      *orderedSet
	unrecognized *orderedSet
	excluded     []string
	revision     uint64
}

// New creates an empty model.
func New(opts Options) *Model {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	m := &Model{
		startedAt:  opts.StartedAt,
		records:    make(map[string]*processRecord),
		destOwners: make(map[string]struct{}),
		unnamed:    newOrderedSet(),
	}
	if opts.Diagnostic {
		m.unrecognized = newOrderedSet()
	}
	if len(opts.Excluded) > 0 {
		m.excluded = append([]string(nil), opts.Excluded...)
	}
	return m
}

// Track records that process name talked from src to dst. Empty
// addresses are ignored; the process itself is still tracked.
func (m *Model) Track(name, src, dst string) TrackResult {
	var res TrackResult
	rec, ok := m.records[name]
	if !ok {
		rec = &processRecord{sources: newOrderedSet(), destinations: newOrderedSet()}
		m.records[name] = rec
		m.tracked = append(m.tracked, name)
		res.NewProcess = true
	}
	if src != "" {
		res.NewSource = rec.sources.add(src)
	}
	if dst != "" {
		res.NewDestination = rec.destinations.add(dst)
		m.destOwners[dst] = struct{}{}
	}
	if res.Changed() {
		m.revision++
	}
	return res
}

// OwnsDestination reports whether any tracked process lists dst as a
// destination, excluded processes included.
func (m *Model) OwnsDestination(dst string) bool {
	_, ok := m.destOwners[dst]
	return ok
}

// AddUnnamed records an address pair without an owning process. It is a
// no-op when a tracked process already owns dst or the line is present.
func (m *Model) AddUnnamed(src, dst string) bool {
	if m.OwnsDestination(dst) {
		return false
	}
	if !m.unnamed.add(src + " to " + dst) {
		return false
	}
	m.revision++
	return true
}

// AddUnrecognized records a raw connection line. It is a no-op outside
// diagnostic mode.
func (m *Model) AddUnrecognized(line string) bool {
	if m.unrecognized == nil || line == "" {
		return false
	}
	if !m.unrecognized.add(line) {
		return false
	}
	m.revision++
	return true
}

// Revision returns a counter incremented by every state change.
func (m *Model) Revision() uint64 {
	return m.revision
}

// Touch sets the last-updated time. It does not count as a change.
func (m *Model) Touch(t time.Time) {
	m.lastUpdated = t
}

// StartedAt returns the model creation time.
func (m *Model) StartedAt() time.Time {
	return m.startedAt
}

// LastUpdated returns the last time a report was produced, or zero.
func (m *Model) LastUpdated() time.Time {
	return m.lastUpdated
}

// Diagnostic reports whether unrecognized connections are recorded.
func (m *Model) Diagnostic() bool {
	return m.unrecognized != nil
}

// TrackedNames returns the process names in first-seen order.
func (m *Model) TrackedNames() []string {
	return append([]string(nil), m.tracked...)
}

// Record returns a copy of the record for name.
func (m *Model) Record(name string) (ProcessRecord, bool) {
	rec, ok := m.records[name]
	if !ok {
		return ProcessRecord{}, false
	}
	return ProcessRecord{
		Name:         name,
		Sources:      rec.sources.values(),
		Destinations: rec.destinations.values(),
	}, true
}

// Unnamed returns the recorded "<src> to <dst>" lines.
func (m *Model) Unnamed() []string {
	return m.unnamed.values()
}

// Unrecognized returns the recorded raw connection lines.
func (m *Model) Unrecognized() []string {
	if m.unrecognized == nil {
		return nil
	}
	return m.unrecognized.values()
}

// Excluded returns the names hidden from reports.
func (m *Model) Excluded() []string {
	return append([]string(nil), m.excluded...)
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	c := &Model{
		startedAt:   m.startedAt,
		lastUpdated: m.lastUpdated,
		tracked:     append([]string(nil), m.tracked...),
		records:     make(map[string]*processRecord, len(m.records)),
		destOwners:  make(map[string]struct{}, len(m.destOwners)),
		unnamed:     m.unnamed.clone(),
		excluded:    append([]string(nil), m.excluded...),
		revision:    m.revision,
	}
	for name, rec := range m.records {
		c.records[name] = &processRecord{
			sources:      rec.sources.clone(),
			destinations: rec.destinations.clone(),
		}
	}
	for dst := range m.destOwners {
		c.destOwners[dst] = struct{}{}
	}
	if m.unrecognized != nil {
		c.unrecognized = m.unrecognized.clone()
	}
	return c
}

// Equal reports deep structural equality of the observable state. The
// revision counter is not compared.
func (m *Model) Equal(o *Model) bool {
	if m == nil || o == nil {
		return m == o
	}
	if !m.startedAt.Equal(o.startedAt) || !m.lastUpdated.Equal(o.lastUpdated) {
		return false
	}
	if !stringsEqual(m.tracked, o.tracked) || !stringsEqual(m.excluded, o.excluded) {
		return false
	}
	if !m.unnamed.equal(o.unnamed) || !m.unrecognized.equal(o.unrecognized) {
		return false
	}
	if len(m.records) != len(o.records) {
		return false
	}
	for name, rec := range m.records {
		other, ok := o.records[name]
		if !ok {
			return false
		}
		if !rec.sources.equal(other.sources) || !rec.destinations.equal(other.destinations) {
			return false
		}
	}
	return true
}

// Report builds the written view. Records of excluded names are left out;
// the live model is not modified.
func (m *Model) Report() *models.Report {
	r := &models.Report{
		StartedTime: m.startedAt.Format(models.StartedTimeLayout),
		TrackedApps: m.TrackedNames(),
		Unnamed:     models.UnnamedAddresses{IPs: m.unnamed.values()},
		Apps:        make([]models.AppEntry, 0, len(m.tracked)),
	}
	if !m.lastUpdated.IsZero() {
		r.LastUpdated = m.lastUpdated.Format(models.LastUpdatedLayout)
	}
	if m.unrecognized != nil {
		r.Unrecognized = &models.UnrecognizedConnections{GotLines: m.unrecognized.values()}
	}
	if len(m.excluded) > 0 {
		r.ExcludedApps = m.Excluded()
	}

	hidden := make(map[string]struct{}, len(m.excluded))
	for _, name := range m.excluded {
		hidden[name] = struct{}{}
	}
	for _, name := range m.tracked {
		if _, ok := hidden[name]; ok {
			continue
		}
		rec := m.records[name]
		r.Apps = append(r.Apps, models.AppEntry{
			Name: name,
			Src:  rec.sources.values(),
			Dst:  rec.destinations.values(),
		})
	}
	return r
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
