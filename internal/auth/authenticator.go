/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

// Authenticator is consulted before opening a file or exporting. When the
// user is not signed in the caller aborts and asks for sign-in.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	RequestSignIn(ctx context.Context)
}

// ContextAuthenticator treats claims in the context as a signed-in user.
type ContextAuthenticator struct {
	// OnSignIn runs when a sign-in is requested. Optional.
	OnSignIn func(ctx context.Context)
}

// IsAuthenticated reports whether ctx carries claims.
func (a ContextAuthenticator) IsAuthenticated(ctx context.Context) bool {
	_, ok := ClaimsFromContext(ctx)
	return ok
}

// RequestSignIn calls OnSignIn if set.
func (a ContextAuthenticator) RequestSignIn(ctx context.Context) {
	if a.OnSignIn != nil {
		a.OnSignIn(ctx)
	}
}

// AllowAll authenticates everyone. The CLI uses it.
type AllowAll struct{}

func (AllowAll) IsAuthenticated(context.Context) bool { return true }
func (AllowAll) RequestSignIn(context.Context)        {}
