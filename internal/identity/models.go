package identity

// Claim is an inbound identity claim. Fields are tried in precedence
// order: bearer credential, explicit SSO fields, session continuation.
// A claim with none of them resolves to a guest.
type Claim struct {
	BearerToken  string `json:"bearer_token,omitempty"`
	ExternalID   string `json:"external_id,omitempty"`
	Email        string `json:"email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

// AccountRef is the result of a successful resolution.
type AccountRef struct {
	AccountID    string `json:"account_id"`
	IsNewAccount bool   `json:"is_new_account"`
	// SessionToken continues this resolution without re-presenting the
	// original credential.
	SessionToken string `json:"session_token"`
}
