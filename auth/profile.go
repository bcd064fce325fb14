/*
profile.go - Logged-in identity, roles, and permissions

PURPOSE:
  The Profile is what the rest of the system sees after authentication:
  who the actor is and what they may do. Permission strings are flat
  (e.g. "coa.request.approve"); roles are coarse labels on top.
*/
package auth

// Profile is the authenticated identity handed to request handlers.
type Profile struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func profileOf(user *User) *Profile {
	return &Profile{
		UserID:      user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		Roles:       append([]string(nil), user.Roles...),
		Permissions: append([]string(nil), user.Permissions...),
	}
}

// HasRole reports whether the profile carries the role.
func (p *Profile) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the profile carries the permission.
func (p *Profile) HasPermission(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the profile carries at least one of the
// permissions. An empty argument list is false.
func (p *Profile) HasAnyPermission(permissions ...string) bool {
	for _, perm := range permissions {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the profile carries every one of the
// permissions. An empty argument list is true.
func (p *Profile) HasAllPermissions(permissions ...string) bool {
	for _, perm := range permissions {
		if !p.HasPermission(perm) {
			return false
		}
	}
	return true
}
