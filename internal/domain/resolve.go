package domain

import "sort"

// ResolveCandidates produces the ordered, de-duplicated station list to try
// for one river and role. Sources merge in priority order:
//
//  1. explicit role mappings for the river, ascending priority number
//  2. the single-station legacy override, if present
//  3. the river's default station (flow only)
//
// Only flow falls back to the generic default: a river without an explicit
// temperature or stage mapping is a reportable config state, not one that
// silently resolves to the flow gage. Duplicates keep their first (highest
// priority) occurrence.
func ResolveCandidates(river River, role Role, mappings []StationMapping, legacyOverride string) []string {
	ranked := make([]StationMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.RiverID == river.ID && m.Role == role && m.Active {
			ranked = append(ranked, m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority < ranked[j].Priority
	})

	var out []string
	seen := make(map[string]bool)
	add := func(site string) {
		if site == "" || seen[site] {
			return
		}
		seen[site] = true
		out = append(out, site)
	}

	for _, m := range ranked {
		add(m.SiteID)
	}
	add(legacyOverride)
	if role == RoleFlow {
		add(river.DefaultSiteID)
	}
	return out
}

// RegistryPool returns capability-registry sites usable for a role, in
// stable site-ID order, excluding sites already in the candidate list.
// This is the last-resort pool tried after every mapped candidate.
func RegistryPool(role Role, capabilities []StationCapability, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, s := range exclude {
		skip[s] = true
	}

	var pool []string
	for _, c := range capabilities {
		if c.HasRole(role) && !skip[c.SiteID] {
			pool = append(pool, c.SiteID)
		}
	}
	sort.Strings(pool)
	return pool
}
