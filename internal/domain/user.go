package domain

// Role tags a participant's side of the marketplace
type Role string

const (
	RoleCustomer      Role = "CUSTOMER"
	RolePropertyOwner Role = "PROPERTY_OWNER"
	RoleVehicleOwner  Role = "VEHICLE_OWNER"
	RoleTourGuide     Role = "TOUR_GUIDE"
	RoleSuperAdmin    Role = "SUPER_ADMIN"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RolePropertyOwner, RoleVehicleOwner, RoleTourGuide, RoleSuperAdmin:
		return true
	}
	return false
}

// IsProvider reports whether r lists properties, vehicles or tours
func (r Role) IsProvider() bool {
	return r == RolePropertyOwner || r == RoleVehicleOwner || r == RoleTourGuide
}
