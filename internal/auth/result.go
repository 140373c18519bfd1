// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

// RegisterRequest carries the fields submitted to Register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // G117: request field, never logged
}

// LoginRequest carries the fields submitted to Authenticate. Identifier is
// matched against usernames first and then against emails.
type LoginRequest struct {
	Identifier string `json:"username"`
	Password   string `json:"password"` //nolint:gosec // G117: request field, never logged
}

// AuthResult is the outcome of Register or Authenticate. Account fields and
// Token are set only when Success is true.
type AuthResult struct {
	Message  string `json:"message"`
	Success  bool   `json:"success"`
	UserID   int64  `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(message string) AuthResult {
	return AuthResult{Message: message}
}

func success(message string, account *Account, token string) AuthResult {
	return AuthResult{
		Message:  message,
		Success:  true,
		UserID:   account.ID,
		Username: account.Username,
		Email:    account.Email,
		Token:    token,
	}
}
