package models

// AuthConfig controls client identification and admin authentication.
// When Enabled is false, X-API-Key values are trusted for rate limit and
// cache identity without a database lookup.
type AuthConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	HeaderName     string `yaml:"header_name,omitempty" json:"header_name,omitzero"`
	AllowAnonymous bool   `yaml:"allow_anonymous,omitempty" json:"allow_anonymous,omitzero"`

	// JWTSecret signs admin bearer tokens. Admin routes are disabled when
	// it is empty.
	JWTSecret       string `yaml:"jwt_secret,omitempty" json:"-"`
	TokenExpiryMins int    `yaml:"token_expiry_mins,omitempty" json:"token_expiry_mins,omitzero"`
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:         false,
		HeaderName:      "X-API-Key",
		AllowAnonymous:  true,
		TokenExpiryMins: 60,
	}
}
