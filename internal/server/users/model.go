package users

// User is the stored identity record. Password always holds a digest
// produced by the credential hasher and is never serialised into replies.
type User struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Password    string  `json:"-"`
	DisplayName *string `json:"displayName"`
}

// UserSummary is the projection returned by bulk lookups.
type UserSummary struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName"`
}

// Update lists the fields to change. A nil field is left untouched; an empty
// string is a value like any other.
type Update struct {
	Email       *string
	Password    *string
	DisplayName *string
}

// Apply copies the non-nil fields of upd onto u.
func (upd Update) Apply(u *User) {
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Password != nil {
		u.Password = *upd.Password
	}
	if upd.DisplayName != nil {
		name := *upd.DisplayName
		u.DisplayName = &name
	}
}
