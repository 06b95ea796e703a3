package tokens

import "github.com/golang-jwt/jwt/v5"

// AccessClaims is the typed payload of every access token. TenantID, TenantSlug
// and Roles are empty on neutral tokens and set on tenant-scoped ones.
type AccessClaims struct {
	TokenVersion int    `json:"tv"`
	TenantID     string `json:"tid,omitempty"`
	TenantSlug   string `json:"tslug,omitempty"`
	Roles        int64  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) IsTenantScoped() bool {
	return c.TenantID != ""
}
