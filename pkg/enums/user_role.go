package enums

// UserRole is the system-wide role carried in access tokens.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var userRoles = set[UserRole]{
	kind:   "user role",
	values: []UserRole{UserRoleUser, UserRoleAdmin},
}

func (r UserRole) String() string { return string(r) }
func (r UserRole) IsValid() bool  { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse(value)
}
