package enums

// AdminRole is the role carried by operator tokens.
type AdminRole string

const (
	AdminRoleAdmin    AdminRole = "admin"
	AdminRoleReadOnly AdminRole = "readonly"
)

func (r AdminRole) IsValid() bool {
	return r == AdminRoleAdmin || r == AdminRoleReadOnly
}
