package domain

import "sort"

type Capability string

const (
	CapLicenseGenerate Capability = "license:generate"
	CapLicenseRevoke   Capability = "license:revoke"
	CapLicenseRead     Capability = "license:read"
	CapUserBan         Capability = "user:ban"
	CapSessionSelf     Capability = "session:self"
	CapLoaderUse       Capability = "loader:use"
)

var roleCapabilities = map[string][]Capability{
	RoleRegularUser: {CapSessionSelf, CapLoaderUse},
	RoleAdmin: {
		CapSessionSelf,
		CapLoaderUse,
		CapLicenseGenerate,
		CapLicenseRevoke,
		CapLicenseRead,
		CapUserBan,
	},
}

// CapabilitiesForRoles returns the sorted, de-duplicated capability set for
// the given role names. Unknown roles grant nothing.
func CapabilitiesForRoles(roles []string) []Capability {
	seen := make(map[Capability]struct{})
	for _, role := range roles {
		for _, c := range roleCapabilities[role] {
			seen[c] = struct{}{}
		}
	}
	out := make([]Capability, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func HasCapability(caps []Capability, required Capability) bool {
	for _, c := range caps {
		if c == required {
			return true
		}
	}
	return false
}

func CapabilityStrings(caps []Capability) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, string(c))
	}
	return out
}

func ParseCapabilities(values []string) []Capability {
	out := make([]Capability, 0, len(values))
	for _, v := range values {
		out = append(out, Capability(v))
	}
	return out
}
