package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

func TestPartitionRegionsMultiState(t *testing.T) {
	criteria := model.Criteria{
		TargetDistribution: map[string]int{"TX": 10, "GA": 5, "FL": 5},
	}
	regions := PartitionRegions(criteria, 2)
	assert.Len(t, regions, 2)
}

func TestPartitionRegionsSingleCityOneRegion(t *testing.T) {
	criteria := model.Criteria{City: "Austin", State: "TX"}
	regions := PartitionRegions(criteria, 1)
	assert.Equal(t, []Region{{Name: "Austin", Focus: "Austin, TX"}}, regions)
}

func TestPartitionRegionsSingleCityQuadrants(t *testing.T) {
	criteria := model.Criteria{City: "Austin", State: "TX"}
	regions := PartitionRegions(criteria, 4)
	assert.Len(t, regions, 4)
	names := make(map[string]bool)
	for _, r := range regions {
		names[r.Name] = true
	}
	assert.True(t, names["Austin-northern"])
	assert.True(t, names["Austin-southern"])
	assert.True(t, names["Austin-eastern"])
	assert.True(t, names["Austin-western"])
}

func TestPartitionRegionsStateOnly(t *testing.T) {
	criteria := model.Criteria{State: "TX"}
	regions := PartitionRegions(criteria, 3)
	assert.Len(t, regions, 3)
	assert.Equal(t, "TX-region-1", regions[0].Name)
	assert.Equal(t, "TX-region-2", regions[1].Name)
	assert.Equal(t, "TX-region-3", regions[2].Name)
}

func TestPartitionRegionsFloorsInvalidCount(t *testing.T) {
	regions := PartitionRegions(model.Criteria{State: "TX"}, 0)
	assert.Len(t, regions, 1)
}

func TestPerRegionTargetCeilingDivision(t *testing.T) {
	assert.Equal(t, 3, PerRegionTarget(10, 4))
	assert.Equal(t, 5, PerRegionTarget(10, 2))
	assert.Equal(t, 10, PerRegionTarget(10, 0))
}
