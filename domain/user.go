package domain

// Profile holds the user-editable part of an account.
type Profile struct {
	Name    string
	Picture string
}

type User struct {
	ID      string
	Profile Profile
}

func (u User) DocumentID() string             { return u.ID }
func (u User) DocumentCollection() Collection { return Users }
