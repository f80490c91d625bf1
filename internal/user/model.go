package user

import "errors"

// ErrNotFound is returned by lookups when no user matches.
var ErrNotFound = errors.New("user not found")

type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	// Thumbnail is the media path of the avatar, empty when none was uploaded.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// SearchResult is a User annotated with the friendship state relative to the
// searching viewer.
type SearchResult struct {
	User
	PendingThem bool `json:"pending_them"`
	PendingMe   bool `json:"pending_me"`
	Connected   bool `json:"connected"`
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int    `json:"id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}
