package handlers_test

import (
	"testing"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/testutil"
)

// user is an onboarded profile with a bearer token.
type user struct {
	profile *domain.UserProfile
	token   string
}

func newUser(t *testing.T, ts *testutil.TestServer) user {
	t.Helper()
	p := testutil.NewProfileBuilder().Build(t, ts.DB.DB)
	return user{profile: p, token: testutil.MintToken(t, p.ClerkID)}
}
