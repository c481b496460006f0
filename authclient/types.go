package authclient

// Credentials is the login payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Profile is the opaque user record returned by the profile endpoint.
type Profile map[string]any

// String returns a display name for logs, falling back through common fields.
func (p Profile) String() string {
	for _, field := range []string{"username", "email", "id"} {
		if v, ok := p[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}
