// Package catalog is the internal seed catalog discovery consults before
// ever invoking the Agent. A seed is a pre-existing catalog entry matching
// criteria, inserted without an Agent call — for well-catalogued
// combinations this can fill a run's target immediately.
package catalog

import (
	"strings"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// Entry is one internal catalog record.
type Entry struct {
	Name          string
	Website       string
	Domain        string
	State         string
	City          string
	PMS           string
	UnitsEstimate int
	Description   string
}

// Catalog answers seed lookups by criteria. Implementations are expected to
// be read-only and safe for concurrent use.
type Catalog interface {
	// MatchSeeds returns catalog entries matching criteria's PMS and
	// state/city, in no particular order.
	MatchSeeds(criteria model.Criteria) []Entry
}

// StaticCatalog is an in-memory Catalog, the default implementation: a fixed
// slate of known companies loaded at process start. A production deployment
// would back this with the same CRM/catalog source the Tool Gateway's
// suppression queries hit; this repo's core only needs the lookup contract.
type StaticCatalog struct {
	entries []Entry
}

// NewStaticCatalog builds a catalog over entries.
func NewStaticCatalog(entries []Entry) *StaticCatalog {
	return &StaticCatalog{entries: entries}
}

// MatchSeeds filters entries whose PMS (case-insensitive) matches
// criteria.PMS (if set) and whose state/city (case-insensitive) matches
// criteria.State/City (if set).
func (c *StaticCatalog) MatchSeeds(criteria model.Criteria) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if criteria.PMS != "" && !strings.EqualFold(e.PMS, criteria.PMS) {
			continue
		}
		if criteria.State != "" && !strings.EqualFold(e.State, criteria.State) {
			continue
		}
		if criteria.City != "" && !strings.EqualFold(e.City, criteria.City) {
			continue
		}
		out = append(out, e)
	}
	return out
}
