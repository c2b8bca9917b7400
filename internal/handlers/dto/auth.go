package dto

type GuestRequest struct {
	Username string `json:"username" binding:"required,min=1,max=30"`
}

type GuestResponse struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	Token          string `json:"token"`
	TokenExpiresAt string `json:"tokenExpiresAt"`
}
