package auth

// TokenType is the scheme of issued credentials.
const TokenType = "Bearer"

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
}
