package model

// User is a candidate account, stored at users/{username}. The
// password is kept in plaintext for compatibility with the existing
// documents; this is a known weakness and out of scope to fix here.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Photo    string `json:"photo,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

// AdminCredentials is the admin/credentials document.
type AdminCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the candidate login payload. Photo and full name are
// only used when the username is not registered yet.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=1,max=64"`
	Password string `json:"password" binding:"required,min=1,max=128"`
	FullName string `json:"fullName" binding:"omitempty,max=128"`
	Photo    string `json:"photo" binding:"omitempty"`
}

// AdminLoginRequest is the admin login payload.
type AdminLoginRequest struct {
	Password string `json:"password" binding:"required,min=1,max=128"`
}
