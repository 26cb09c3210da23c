package domain

// Chat links exactly two distinct members. Title and picture are derived
// from the non-self member's profile at read time, see projection.ChatList.
type Chat struct {
	ID        string
	MemberIDs [2]string
}

func (c Chat) DocumentID() string             { return c.ID }
func (c Chat) DocumentCollection() Collection { return Chats }

func (c Chat) HasMember(userID string) bool {
	return c.MemberIDs[0] == userID || c.MemberIDs[1] == userID
}

// OtherMember returns the member that is not the viewer.
// The second return value is false when the viewer is not a member.
func (c Chat) OtherMember(viewerID string) (string, bool) {
	switch viewerID {
	case c.MemberIDs[0]:
		return c.MemberIDs[1], true
	case c.MemberIDs[1]:
		return c.MemberIDs[0], true
	}
	return "", false
}

// SameMembers reports whether the chat connects the given unordered pair.
func (c Chat) SameMembers(a, b string) bool {
	return (c.MemberIDs[0] == a && c.MemberIDs[1] == b) ||
		(c.MemberIDs[0] == b && c.MemberIDs[1] == a)
}
