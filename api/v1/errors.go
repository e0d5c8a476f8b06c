package v1

import "errors"

var (
	ErrContentType = errors.New("Content-Type must be application/json")
	ErrUserID      = errors.New("userId is required")
	ErrPinnedUser  = errors.New("user is pinned by configuration")
)
