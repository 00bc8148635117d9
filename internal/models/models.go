// package models defines the data model for the playlist synchronization service
package models

import (
	"fmt"
	"strings"
	"time"
)

// Origin identifies the provider a playlist or credential belongs to.
type Origin string

const (
	OriginSpotify      Origin = "Spotify"
	OriginDeezer       Origin = "Deezer"
	OriginYoutubeMusic Origin = "YoutubeMusic"
	OriginAppleMusic   Origin = "AppleMusic"
)

// Origins lists every supported provider.
var Origins = []Origin{OriginSpotify, OriginDeezer, OriginYoutubeMusic, OriginAppleMusic}

// ParseOrigin converts a string into an [Origin], case-insensitively.
func ParseOrigin(s string) (Origin, error) {
	for _, o := range Origins {
		if strings.EqualFold(s, string(o)) {
			return o, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Role is the authorization role carried by a [Principal].
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Principal is the authenticated caller identity threaded through every core
// operation. The outer transport layer produces it; the core only consumes it.
type Principal struct {
	UserID int64
	Role   Role
}

// User represents an account holder.
//
// DeletedOn marks a soft delete: the row stays for referential integrity but
// the user can no longer authenticate and is filtered from enumeration reads.
type User struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	CreatedOn time.Time
	UpdatedOn time.Time
	DeletedOn *time.Time
}

// Deleted reports whether the user has been soft-deleted.
func (u *User) Deleted() bool {
	return u.DeletedOn != nil
}

// Track is a canonical track, independent of any provider. Its identity is the
// (Title, Artist, Album) triple; there is no surrogate id.
type Track struct {
	Title       string
	Artist      string
	Album       string
	ReleaseDate string
	Genre       string
}

// TrackKey is the natural composite key of a canonical track.
type TrackKey struct {
	Title  string
	Artist string
	Album  string
}

// Key returns the track's natural key. A missing album collapses to the empty
// string so NULL and '' dedup to the same canonical row.
func (t Track) Key() TrackKey {
	return TrackKey{Title: t.Title, Artist: t.Artist, Album: t.Album}
}

// Validate checks that the track carries its identifying fields.
func (t Track) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("track title is required")
	}
	if t.Artist == "" {
		return fmt.Errorf("track artist is required")
	}
	return nil
}

// Playlist is a canonical playlist imported from (or destined for) a provider.
//
// (OwnerID, Origin, OriginID) is unique: re-importing the same provider
// playlist updates the existing row in place.
type Playlist struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description string
	Origin      Origin
	OriginID    string
	ImageURL    string
	CreatedOn   time.Time
	UpdatedOn   time.Time
}

// Validate checks the playlist's required fields.
func (p Playlist) Validate() error {
	if p.OwnerID == 0 {
		return fmt.Errorf("playlist owner is required")
	}
	if p.Name == "" {
		return fmt.Errorf("playlist name is required")
	}
	if _, err := ParseOrigin(string(p.Origin)); err != nil {
		return err
	}
	return nil
}

// Credential holds the provider tokens for one (user, provider) pair.
type Credential struct {
	UserID       int64
	Provider     Origin
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// ExpiresWithin reports whether the credential expires before now+guard.
func (c *Credential) ExpiresWithin(guard time.Duration) bool {
	return c.Expiry.Before(time.Now().Add(guard))
}

// Friendship is a single directed friend edge. A mutual friendship exists iff
// both directed edges exist; a lone edge is private intent.
type Friendship struct {
	UserID    int64
	FriendID  int64
	CreatedOn time.Time
}

// Share records that a playlist owner shared a playlist with a recipient.
type Share struct {
	ID          int64
	PlaylistID  int64
	RecipientID int64
	SharedBy    int64
	CreatedOn   time.Time
}

// ShareView is the tuple returned by shared-to-me queries: the share edge plus
// the playlist and the sharer's public profile.
type ShareView struct {
	ShareID  int64
	Playlist Playlist
	Sharer   User
	SharedOn time.Time
}
