package discovery

import (
	"fmt"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// Region is a narrower geography carved out of a run's criteria to
// parallelize Agent-driven discovery. Each region has a name and a short
// narrative focus used in the per-region Agent prompt.
type Region struct {
	Name  string
	Focus string
}

// PartitionRegions splits criteria's geography into up to r regions.
//   - A single named city: one region, or r quadrants when r > 1.
//   - State-only: r generic sub-areas within the state (a real deployment
//     would rank by top cities; this core only needs distinct, stable
//     region names/foci to drive parallel Agent prompts).
//   - Multi-state (via target_distribution): one region per state named in
//     target_distribution, capped at r.
func PartitionRegions(criteria model.Criteria, r int) []Region {
	if r < 1 {
		r = 1
	}

	if len(criteria.TargetDistribution) > 0 {
		regions := make([]Region, 0, len(criteria.TargetDistribution))
		for state := range criteria.TargetDistribution {
			regions = append(regions, Region{
				Name:  state,
				Focus: fmt.Sprintf("the state of %s", state),
			})
			if len(regions) >= r {
				break
			}
		}
		return regions
	}

	if criteria.City != "" {
		if r == 1 {
			return []Region{{Name: criteria.City, Focus: fmt.Sprintf("%s, %s", criteria.City, criteria.State)}}
		}
		regions := make([]Region, 0, r)
		quadrants := []string{"northern", "southern", "eastern", "western"}
		for i := 0; i < r; i++ {
			q := quadrants[i%len(quadrants)]
			regions = append(regions, Region{
				Name:  fmt.Sprintf("%s-%s", criteria.City, q),
				Focus: fmt.Sprintf("the %s part of %s, %s", q, criteria.City, criteria.State),
			})
		}
		return regions
	}

	regions := make([]Region, 0, r)
	for i := 0; i < r; i++ {
		regions = append(regions, Region{
			Name:  fmt.Sprintf("%s-region-%d", criteria.State, i+1),
			Focus: fmt.Sprintf("sub-area %d of %s", i+1, criteria.State),
		})
	}
	return regions
}

// PerRegionTarget is ceil(discoveryTarget / len(regions)), the count the
// prompt asks each region to contribute.
func PerRegionTarget(discoveryTarget, regionCount int) int {
	if regionCount <= 0 {
		return discoveryTarget
	}
	return (discoveryTarget + regionCount - 1) / regionCount
}
