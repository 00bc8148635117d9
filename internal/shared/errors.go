package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidArgument = fmt.Errorf("invalid argument")

	// Authorization errors
	ErrForbidden = fmt.Errorf("forbidden")

	// Lookup errors
	ErrNotFound         = fmt.Errorf("not found")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrTrackNotFound    = fmt.Errorf("track not found")
	ErrNotInPlaylist    = fmt.Errorf("track not in playlist")

	// Provider credential errors
	ErrNotLinked      = fmt.Errorf("provider not linked")
	ErrTokenExpired   = fmt.Errorf("access token expired")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrStateExpired   = fmt.Errorf("authorization state expired")

	// Provider and storage errors
	ErrProviderUnavailable = fmt.Errorf("provider unavailable")
	ErrStorage             = fmt.Errorf("storage error")
	ErrInternal            = fmt.Errorf("internal error")
)
