// Package identity maps Perforce user names to git author identities.
package identity

import (
	"fmt"
	"sort"

	perrors "github.com/jmgilman/go/errors"
	"github.com/rcowham/p4gittransfer/config"
)

// CodeUnmappedUser - a submitter has no entry in the usermapping
const CodeUnmappedUser perrors.ErrorCode = "UNMAPPED_USER"

// Identity - git author/committer identity
type Identity struct {
	Name  string
	Email string
}

// String formats the identity the way git --author expects it
func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// Resolver - read-only lookup of p4 user to git identity
type Resolver struct {
	users map[string]config.User
}

func NewResolver(users map[string]config.User) *Resolver {
	m := make(map[string]config.User, len(users))
	for k, v := range users {
		m[k] = v
	}
	return &Resolver{users: m}
}

// Resolve returns the identity for a p4 user
func (r *Resolver) Resolve(user string) (Identity, error) {
	u, ok := r.users[user]
	if !ok {
		return Identity{}, perrors.WithContext(
			perrors.Newf(CodeUnmappedUser, "Missing name in the look up table: %s", user), "user", user)
	}
	return Identity{Name: u.Name, Email: u.Email}, nil
}

// CheckAll verifies every user is mapped. All unmapped users are reported in the one error,
// sorted, so a single settings fix covers the whole history.
func (r *Resolver) CheckAll(users []string) error {
	missing := make(map[string]bool)
	for _, u := range users {
		if _, ok := r.users[u]; !ok {
			missing[u] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for u := range missing {
		names = append(names, u)
	}
	sort.Strings(names)
	return perrors.WithContext(
		perrors.Newf(CodeUnmappedUser, "Missing name(s) in the look up table: %v", names), "users", names)
}
