package session

// Session holds the credentials sent with every backend request.
type Session struct {
	Token  string `json:"token,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

// Anonymous reports whether neither credential is present.
func (s Session) Anonymous() bool {
	return s.Token == "" && s.APIKey == ""
}
