package domain

// Role names the measured quantity a station is trusted for.
type Role string

const (
	RoleFlow        Role = "flow"
	RoleTemperature Role = "temperature"
	RoleStage       Role = "stage"
)

// Abbrev returns the short form used in reason codes and column prefixes.
func (r Role) Abbrev() string {
	if r == RoleTemperature {
		return "temp"
	}
	return string(r)
}

// River is a monitored river reach. Rows are managed by an external admin
// process; the pipeline reads them and never writes them.
type River struct {
	ID            int64
	Slug          string
	Name          string
	Lat           float64
	Lon           float64
	Timezone      string // IANA zone governing the river's calendar date
	DefaultSiteID string // legacy catch-all USGS site, flow fallback only
	Active        bool
}

// StationMapping ranks a USGS site for one river/role. Multiple rows per
// (river, role) are ranked alternatives; priority 1 is most trusted.
// Produced by the registry-sync process and consumed read-only here.
type StationMapping struct {
	RiverID  int64
	Role     Role
	SiteID   string
	Priority int
	Active   bool
}

// StationCapability records which parameters a site was observed to expose
// when last probed. Used only as a last-resort candidate pool once explicit
// role mappings are exhausted.
type StationCapability struct {
	SiteID         string
	HasFlow        bool
	HasTemperature bool
}

// HasRole reports whether the probed site exposes the parameter for a role.
func (c StationCapability) HasRole(role Role) bool {
	switch role {
	case RoleFlow, RoleStage:
		return c.HasFlow
	case RoleTemperature:
		return c.HasTemperature
	default:
		return false
	}
}
