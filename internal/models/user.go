package models

// User is the minimal identity record the permission engine needs: listing
// endpoints decorate grants with the subject's email and display name.
// Credential storage and verification live in the platform's auth service.
type User struct {
	BaseModel

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	FullName string `json:"full_name"`
}

// TableName overrides the default table name for GORM.
func (User) TableName() string {
	return "users"
}
