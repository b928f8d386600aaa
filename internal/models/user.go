package models

type User struct {
	BaseModel
	Email        string  `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string  `json:"-" gorm:"type:text;not null"`
	DisplayName  string  `json:"displayName" gorm:"type:varchar(100);not null"`
	ReferralCode string  `json:"referralCode" gorm:"type:varchar(12);uniqueIndex;not null"`
	AvatarURL    *string `json:"avatarURL,omitempty" gorm:"type:text"`
}
