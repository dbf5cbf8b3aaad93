// Package models holds the JSON request and response bodies of the board API.
// They are shared by the client and the development server so both sides of
// the contract stay in step.
package models

// AuthRequest is the body of POST /auth/login and POST /auth/register.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserInfo is the public part of a user record.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// AuthResponse is returned by login (token and user) and register (token only).
type AuthResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user,omitempty"`
}

// CreatePostRequest is the body of POST /posts.
type CreatePostRequest struct {
	Text string `json:"text"`
}

// CreateCommentRequest is the body of POST /posts/{postId}/comments.
// A nil ParentID creates a root comment.
type CreateCommentRequest struct {
	ParentID *string `json:"parentId"`
	Text     string  `json:"text"`
}

// ErrorResponse is the error envelope the API uses for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
