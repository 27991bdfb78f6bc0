package user

import "time"

// User is a record in the user directory.
// Followers and Following are the two halves of the follow graph:
// B is in A.Following exactly when A is in B.Followers.
type User struct {
	ID         string
	Username   string
	Email      string
	Bio        string
	Avatar     string
	Credential string // opaque, owned by the auth collaborator
	Followers  IDSet
	Following  IDSet
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsFollowing reports whether u follows the user with the given id.
func (u *User) IsFollowing(id string) bool {
	return u.Following.Contains(id)
}

// Neighbours returns every id u is related to in either direction, without duplicates.
func (u *User) Neighbours() []string {
	out := make(IDSet, 0, len(u.Followers)+len(u.Following))
	for _, id := range u.Followers {
		out, _ = out.Add(id)
	}
	for _, id := range u.Following {
		out, _ = out.Add(id)
	}
	return out
}

// PairMutation edits two records loaded in the same store transaction.
// Returning an error aborts the transaction and neither record is written.
type PairMutation func(actor, target *User) error
