package domain

import "errors"

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrConnectionExists  = errors.New("connection already registered")
	ErrInvalidRoomKey    = errors.New("invalid room key")
	ErrHubStopped        = errors.New("hub stopped")

	ErrNotAuthenticated = errors.New("not logged in")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrNotAnAdmin       = errors.New("not an admin")

	ErrUserNotFound    = errors.New("user not found")
	ErrTaglineNotFound = errors.New("tagline not found")
)
