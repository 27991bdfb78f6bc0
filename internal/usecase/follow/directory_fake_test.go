package follow

import (
	"context"
	"slices"
	"sync"

	domain "social-graph-service/internal/domain/user"
	pkgerrors "social-graph-service/pkg/errors"
)

// memDirectory is an in-memory Directory. UpdatePair holds the lock for the
// whole read-modify-write, which gives it the same all-or-nothing behaviour
// as a store transaction.
type memDirectory struct {
	mu    sync.Mutex
	users map[string]*domain.User

	getFailures int   // GetByID fails with a StoreError this many times
	updateErr   error // returned by UpdatePair after fn succeeds, nothing written
	getCalls    int
}

func newMemDirectory(ids ...string) *memDirectory {
	d := &memDirectory{users: make(map[string]*domain.User)}
	for _, id := range ids {
		d.users[id] = &domain.User{ID: id, Username: "user-" + id, Email: id + "@example.com"}
	}
	return d
}

func clone(u *domain.User) *domain.User {
	c := *u
	c.Followers = slices.Clone(u.Followers)
	c.Following = slices.Clone(u.Following)
	return &c
}

func (d *memDirectory) GetByID(_ context.Context, id string) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getCalls++
	if d.getFailures > 0 {
		d.getFailures--
		return nil, pkgerrors.NewStoreError("get user", context.DeadlineExceeded)
	}
	u, ok := d.users[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("user", id)
	}
	return clone(u), nil
}

func (d *memDirectory) GetByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.User, 0, len(ids))
	// reverse order so callers cannot rely on store order
	for i := len(ids) - 1; i >= 0; i-- {
		if u, ok := d.users[ids[i]]; ok {
			out = append(out, *clone(u))
		}
	}
	return out, nil
}

func (d *memDirectory) UpdatePair(_ context.Context, actorID, targetID string, fn domain.PairMutation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.users[actorID]
	if !ok {
		return pkgerrors.NewNotFoundError("user", actorID)
	}
	t, ok := d.users[targetID]
	if !ok {
		return pkgerrors.NewNotFoundError("user", targetID)
	}
	actor, target := clone(a), clone(t)
	if err := fn(actor, target); err != nil {
		return err
	}
	if d.updateErr != nil {
		return d.updateErr
	}
	d.users[actorID], d.users[targetID] = actor, target
	return nil
}

func (d *memDirectory) DeleteCascade(_ context.Context, id string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("user", id)
	}
	affected := u.Neighbours()
	for _, nid := range affected {
		if n, ok := d.users[nid]; ok {
			n.Followers, _ = n.Followers.Remove(id)
			n.Following, _ = n.Following.Remove(id)
		}
	}
	delete(d.users, id)
	return affected, nil
}

func (d *memDirectory) snapshot(id string) *domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		return clone(u)
	}
	return nil
}

// symmetric reports whether B ∈ A.following ⇔ A ∈ B.followers for every pair,
// and that no record references itself.
func (d *memDirectory) symmetric() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for aID, a := range d.users {
		if a.Following.Contains(aID) || a.Followers.Contains(aID) {
			return false
		}
		for bID, b := range d.users {
			if a.Following.Contains(bID) != b.Followers.Contains(aID) {
				return false
			}
		}
	}
	return true
}
