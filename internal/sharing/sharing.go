// package sharing manages friendship edges, playlist-share edges, and the
// derived visibility rule.
package sharing

import (
	"context"
	"fmt"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/repositories"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// Service exposes the friendship and playlist-sharing operations.
//
// Friendship edges are directed; mutuality is derived on read. Sharing
// deliberately does not require friendship; that policy belongs to the
// boundary layer if a deployment wants it.
type Service struct {
	friends   *repositories.FriendshipRepository
	shares    *repositories.ShareRepository
	playlists *repositories.PlaylistRepository
	users     *repositories.UserRepository
}

// NewService creates a sharing service over the given repositories.
func NewService(friends *repositories.FriendshipRepository, shares *repositories.ShareRepository,
	playlists *repositories.PlaylistRepository, users *repositories.UserRepository) *Service {
	return &Service{friends: friends, shares: shares, playlists: playlists, users: users}
}

// AddFriend records the directed intent userID → otherID. The friendship
// becomes mutual (and visible) once the reverse edge exists too.
func (s *Service) AddFriend(ctx context.Context, userID, otherID int64) error {
	if userID == otherID {
		return fmt.Errorf("%w: cannot befriend yourself", shared.ErrInvalidInput)
	}

	// The target must exist and not be soft-deleted.
	if _, err := s.users.Get(ctx, otherID); err != nil {
		return err
	}

	return s.friends.Add(ctx, userID, otherID)
}

// RemoveFriend deletes both directed edges between the two users.
func (s *Service) RemoveFriend(ctx context.Context, userID, otherID int64) error {
	return s.friends.Remove(ctx, userID, otherID)
}

// ListFriends returns the users mutually befriended with userID.
func (s *Service) ListFriends(ctx context.Context, userID int64) ([]models.User, error) {
	return s.friends.ListMutual(ctx, userID)
}

// Share shares a playlist with a recipient. The caller must own the playlist,
// and owners cannot share with themselves. Re-sharing is a no-op.
func (s *Service) Share(ctx context.Context, ownerID, playlistID, recipientID int64) error {
	playlist, err := s.playlists.Get(ctx, playlistID)
	if err != nil {
		return err
	}
	if playlist.OwnerID != ownerID {
		return fmt.Errorf("%w: user %d does not own playlist %d", shared.ErrForbidden, ownerID, playlistID)
	}
	if recipientID == ownerID {
		return fmt.Errorf("%w: cannot share a playlist with yourself", shared.ErrInvalidInput)
	}

	if _, err := s.users.Get(ctx, recipientID); err != nil {
		return err
	}

	return s.shares.Create(ctx, playlistID, recipientID, ownerID)
}

// Unshare revokes exactly the (playlist, recipient) share edge.
func (s *Service) Unshare(ctx context.Context, ownerID, playlistID, recipientID int64) error {
	playlist, err := s.playlists.Get(ctx, playlistID)
	if err != nil {
		return err
	}
	if playlist.OwnerID != ownerID {
		return fmt.Errorf("%w: user %d does not own playlist %d", shared.ErrForbidden, ownerID, playlistID)
	}

	return s.shares.Delete(ctx, playlistID, recipientID)
}

// SharedToMe lists playlists shared to the user, with sharer profiles.
func (s *Service) SharedToMe(ctx context.Context, userID int64) ([]models.ShareView, error) {
	return s.shares.SharedTo(ctx, userID)
}

// CanView reports whether the user may view the playlist: they own it or it
// has been shared to them.
func (s *Service) CanView(ctx context.Context, userID int64, playlist *models.Playlist) (bool, error) {
	if playlist.OwnerID == userID {
		return true, nil
	}
	return s.shares.IsSharedWith(ctx, playlist.ID, userID)
}

// SearchUsers finds share candidates by username, email, or name substring.
func (s *Service) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	return s.users.Search(ctx, query, false)
}
