package session

import "huddle/pkg/types"

// ErrNotSessionMember is returned when the acting user exists but belongs
// to a different session.
var ErrNotSessionMember = types.NewNotFoundError("User is not part of this session")
