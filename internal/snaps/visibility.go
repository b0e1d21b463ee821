package snaps

import "context"

// FollowGraph resolves the authors a viewer follows.
type FollowGraph interface {
	FollowedEmails(ctx context.Context, token, username string) ([]string, error)
}

// Visible reports whether viewer may read snap. Blocked snaps are never
// visible through listings. Private snaps are visible to their author, to
// moderators and to followers of the author, whose emails are in followed.
func Visible(snap Snap, viewer Viewer, followed map[string]struct{}) bool {
	if snap.IsBlocked && !viewer.Moderator {
		return false
	}
	if !snap.IsPrivate || viewer.Moderator || snap.OwnedBy(viewer.Email) {
		return true
	}
	_, follows := followed[snap.AuthorEmail]
	return follows
}

// FollowSet converts a list of emails into a membership set.
func FollowSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		set[email] = struct{}{}
	}
	return set
}

// FilterVisible drops the snaps viewer may not read. The follow graph is only
// consulted when a private snap of another author is present.
func FilterVisible(ctx context.Context, graph FollowGraph, viewer Viewer, snaps []Snap) ([]Snap, error) {
	var followed map[string]struct{}
	if needsFollowSet(viewer, snaps) {
		if graph == nil {
			return nil, newServiceError(opVisibility, reasonMissingGraph, errMissingGraph)
		}
		emails, err := graph.FollowedEmails(ctx, viewer.Token, viewer.Username)
		if err != nil {
			return nil, newServiceError(opVisibility, reasonGraphFailed, err)
		}
		followed = FollowSet(emails)
	}

	visible := make([]Snap, 0, len(snaps))
	for _, snap := range snaps {
		if Visible(snap, viewer, followed) {
			visible = append(visible, snap)
		}
	}
	return visible, nil
}

func needsFollowSet(viewer Viewer, snaps []Snap) bool {
	if viewer.Moderator {
		return false
	}
	for _, snap := range snaps {
		if snap.IsPrivate && !snap.OwnedBy(viewer.Email) {
			return true
		}
	}
	return false
}
