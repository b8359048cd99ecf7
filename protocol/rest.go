package protocol

import "profilebook/auth"

// Bodies of the REST API. The client package encodes the same types.

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AccountResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiverId,omitempty"`
	Content    string `json:"content"`
}

type NotifyRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type CountResponse struct {
	Count int `json:"count"`
}

func FromAccount(account auth.Account) AccountResponse {
	return AccountResponse{Token: account.Token.String(), UserID: account.UserID, Username: account.Username}
}
