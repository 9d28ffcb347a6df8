// Package auth decides which operators may drive the key pool.
//
// An operator is identified by the subject of an HS256 bearer token. The
// token only proves who the caller is; the allow-list decides whether that
// caller may touch the pool at all, and it is checked before any pool call.
// The operator id travels in the request context as the base middleware's
// user id.
package auth

import (
	"strings"
)

// Authorizer holds the operator allow-list.
type Authorizer struct {
	operators map[string]struct{}
}

// NewAuthorizer builds an allow-list from operator ids. Blank entries are ignored.
func NewAuthorizer(operatorIDs []string) *Authorizer {
	a := &Authorizer{operators: make(map[string]struct{}, len(operatorIDs))}
	for _, id := range operatorIDs {
		if id = strings.TrimSpace(id); id != "" {
			a.operators[id] = struct{}{}
		}
	}
	return a
}

// IsAuthorized reports whether id is on the allow-list. An empty allow-list
// authorizes nobody.
func (a *Authorizer) IsAuthorized(id string) bool {
	if a == nil {
		return false
	}
	_, ok := a.operators[id]
	return ok
}

// Operators returns the number of allowed operators.
func (a *Authorizer) Operators() int {
	if a == nil {
		return 0
	}
	return len(a.operators)
}
