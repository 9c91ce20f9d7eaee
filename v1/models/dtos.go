package models

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// MessageResponse is the JSON body of a successful registration
type MessageResponse struct {
	Message string `json:"message"`
}

// SignInRequest carries admin credentials forwarded to the auth provider
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshSessionRequest carries the refresh token of an admin session
type RefreshSessionRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionTokens are the credentials issued by the auth provider
type SessionTokens struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresIn    int            `json:"expires_in"`
	TokenType    string         `json:"token_type"`
	User         *AdminIdentity `json:"user,omitempty"`
}
