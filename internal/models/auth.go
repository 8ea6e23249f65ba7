package models

// RegisterRequest is the POST /api/auth/register body. device_id is a
// client-generated UUIDv4 that survives reinstalls.
type RegisterRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

type RegisterResponse struct {
	UserID       string `json:"user_id"`
	IsNewUser    bool   `json:"is_new_user"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type VerifyRequest struct {
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id"`
}

type VerifyResponse struct {
	Valid   bool   `json:"valid"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type LogoutRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthStartRequest struct {
	DeviceID string `json:"device_id"`
}

type AuthStartResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}
