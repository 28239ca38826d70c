package models

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserInactive   = errors.New("user is deactivated")
	ErrNotAMember     = errors.New("not a member of this channel")
	ErrChannelClosed  = errors.New("channel is not joinable")
	ErrInvalidStatus  = errors.New("invalid presence status")
	ErrInvalidToken   = errors.New("invalid authentication token")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrConnectionGone = errors.New("connection closed")
)
