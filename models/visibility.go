package models

import (
	"bytes"
	"encoding/json"
)

// Visibility says who may see a container: everyone (Public) or a single
// user (OwnedBy). The zero value is Public.
type Visibility struct {
	owner string
}

// Public returns the visibility shared by all users.
func Public() Visibility {
	return Visibility{}
}

// OwnedBy returns a visibility restricted to userID. An empty id is Public.
func OwnedBy(userID string) Visibility {
	return Visibility{owner: userID}
}

// IsPublic reports whether the container has no owner.
func (v Visibility) IsPublic() bool {
	return v.owner == ""
}

// Owner returns the owning user id, if any.
func (v Visibility) Owner() (string, bool) {
	return v.owner, v.owner != ""
}

// VisibleTo reports whether a non-staff user may see the container.
func (v Visibility) VisibleTo(userID string) bool {
	return v.IsPublic() || v.owner == userID
}

// MarshalJSON encodes Public as null and OwnedBy as the owner id.
func (v Visibility) MarshalJSON() ([]byte, error) {
	if v.IsPublic() {
		return []byte("null"), nil
	}
	return json.Marshal(v.owner)
}

// UnmarshalJSON accepts null or a user id string.
func (v *Visibility) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		v.owner = ""
		return nil
	}
	var owner string
	if err := json.Unmarshal(data, &owner); err != nil {
		return err
	}
	v.owner = owner
	return nil
}

// User is an external identity, referenced by id only. Staff users see every
// container regardless of ownership.
type User struct {
	ID    string `json:"id"`
	Staff bool   `json:"staff"`
}
