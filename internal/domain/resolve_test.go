package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func testRiver() River {
	return River{ID: 7, Slug: "madison", DefaultSiteID: "06041000", Active: true}
}

func TestResolveCandidates_PriorityOrder(t *testing.T) {
	mappings := []StationMapping{
		{RiverID: 7, Role: RoleFlow, SiteID: "200", Priority: 2, Active: true},
		{RiverID: 7, Role: RoleFlow, SiteID: "100", Priority: 1, Active: true},
		{RiverID: 7, Role: RoleFlow, SiteID: "300", Priority: 3, Active: true},
	}

	got := ResolveCandidates(testRiver(), RoleFlow, mappings, "")
	want := []string{"100", "200", "300", "06041000"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("candidate order mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveCandidates_DeduplicatesKeepingFirst(t *testing.T) {
	mappings := []StationMapping{
		{RiverID: 7, Role: RoleFlow, SiteID: "100", Priority: 1, Active: true},
		{RiverID: 7, Role: RoleFlow, SiteID: "06041000", Priority: 2, Active: true},
	}

	// Legacy override and default both duplicate mapped sites.
	got := ResolveCandidates(testRiver(), RoleFlow, mappings, "100")
	assert.Equal(t, []string{"100", "06041000"}, got)
}

func TestResolveCandidates_IgnoresOtherRiversRolesAndInactive(t *testing.T) {
	mappings := []StationMapping{
		{RiverID: 7, Role: RoleTemperature, SiteID: "T1", Priority: 1, Active: true},
		{RiverID: 8, Role: RoleFlow, SiteID: "OTHER", Priority: 1, Active: true},
		{RiverID: 7, Role: RoleFlow, SiteID: "DEAD", Priority: 1, Active: false},
	}

	got := ResolveCandidates(testRiver(), RoleFlow, mappings, "")
	assert.Equal(t, []string{"06041000"}, got)
}

func TestResolveCandidates_TemperatureNeverUsesDefault(t *testing.T) {
	got := ResolveCandidates(testRiver(), RoleTemperature, nil, "")
	assert.Empty(t, got, "temperature must not fall back to the default station")
}

func TestResolveCandidates_TemperatureUsesLegacyOverride(t *testing.T) {
	got := ResolveCandidates(testRiver(), RoleTemperature, nil, "T9")
	assert.Equal(t, []string{"T9"}, got)
}

func TestResolveCandidates_StageDoesNotUseDefault(t *testing.T) {
	got := ResolveCandidates(testRiver(), RoleStage, nil, "")
	assert.Empty(t, got, "stage must not fall back to the default station")
}

func TestRegistryPool_FiltersByRoleAndExclusion(t *testing.T) {
	caps := []StationCapability{
		{SiteID: "B", HasFlow: true, HasTemperature: true},
		{SiteID: "A", HasFlow: true},
		{SiteID: "C", HasTemperature: true},
		{SiteID: "D"},
	}

	assert.Equal(t, []string{"A", "B"}, RegistryPool(RoleFlow, caps, nil))
	assert.Equal(t, []string{"B", "C"}, RegistryPool(RoleTemperature, caps, nil))
	assert.Equal(t, []string{"C"}, RegistryPool(RoleTemperature, caps, []string{"B"}))
}
