package models

// Credential is the login row of an office user (SCreateAdmin).
type Credential struct {
	UserID   string
	Name     string
	Password string
	Post     string
	Mobile   string
	Office   string
}

// Profile is the user-visible part of an office user.
type Profile struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Post   string `json:"post"`
	Mobile string `json:"mobile"`
	Office string `json:"office"`
	Email  string `json:"email,omitempty"`
	Image  string `json:"image,omitempty"`
}
