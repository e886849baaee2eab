package pipeline

import "github.com/dvloznov/trading-ingest/internal/domain"

// OwnerIndex answers whether a user exists in the accepted user set.
// Build it only after the user pass has finished.
type OwnerIndex struct {
	ids map[int64]bool
}

// NewOwnerIndex indexes accepted users.
func NewOwnerIndex(users []domain.User) *OwnerIndex {
	ids := make(map[int64]bool, len(users))
	for _, u := range users {
		ids[u.UserID] = true
	}
	return &OwnerIndex{ids: ids}
}

// ValidOwner reports whether userID belongs to an accepted user.
func (o *OwnerIndex) ValidOwner(userID int64) bool {
	return o.ids[userID]
}

// Len returns the number of indexed users.
func (o *OwnerIndex) Len() int {
	return len(o.ids)
}
