package enums

import "fmt"

// MemberRole is the role claim carried by access tokens.
type MemberRole string

const (
	MemberRoleSuperAdmin MemberRole = "super_admin"
	MemberRoleAdmin      MemberRole = "admin"
	MemberRoleStaff      MemberRole = "staff"
	MemberRoleCustomer   MemberRole = "customer"
	// MemberRoleService is used by internal collaborators such as the order module.
	MemberRoleService MemberRole = "service"
)

var validMemberRoles = []MemberRole{
	MemberRoleSuperAdmin,
	MemberRoleAdmin,
	MemberRoleStaff,
	MemberRoleCustomer,
	MemberRoleService,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MemberRole.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}

// Capability is a typed permission checked at the API boundary.
type Capability string

const (
	CapabilityInventoryRead    Capability = "inventory:read"
	CapabilityInventoryReserve Capability = "inventory:reserve"
	CapabilityInventorySystem  Capability = "inventory:system"
	CapabilityInventoryAdmin   Capability = "inventory:admin"
)

var roleCapabilities = map[MemberRole][]Capability{
	MemberRoleSuperAdmin: {CapabilityInventoryRead, CapabilityInventoryReserve, CapabilityInventorySystem, CapabilityInventoryAdmin},
	MemberRoleAdmin:      {CapabilityInventoryRead, CapabilityInventoryReserve, CapabilityInventorySystem, CapabilityInventoryAdmin},
	MemberRoleService:    {CapabilityInventoryRead, CapabilityInventoryReserve, CapabilityInventorySystem},
	MemberRoleStaff:      {CapabilityInventoryRead, CapabilityInventoryReserve},
	MemberRoleCustomer:   {CapabilityInventoryRead, CapabilityInventoryReserve},
}

// Capabilities returns the capabilities granted to the role.
func (m MemberRole) Capabilities() []Capability {
	granted := roleCapabilities[m]
	out := make([]Capability, len(granted))
	copy(out, granted)
	return out
}

// Can reports whether the role grants the capability.
func (m MemberRole) Can(capability Capability) bool {
	for _, candidate := range roleCapabilities[m] {
		if candidate == capability {
			return true
		}
	}
	return false
}
