package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// User is the application-level profile attached to an identity.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	PasswordHash   string    `json:"-"`
	EmailVerified  bool      `json:"email_verified"`
	Role           Role      `json:"role"`
	Name           string    `json:"name"`
	Surname        string    `json:"surname"`
	StudentNum     string    `json:"student_num"`
	Degree         string    `json:"degree"`
	YearOfStudy    string    `json:"year_of_study"`
	Bio            string    `json:"bio"`
	ImagePath      *string   `json:"image_path,omitempty"`      // nil = no profile picture
	TranscriptPath *string   `json:"transcript_path,omitempty"` // tutors only
	IsVerified     bool      `json:"is_verified"`
	Ratings        []int     `json:"ratings"`        // chronological
	AverageRating  *float64  `json:"average_rating"` // nil while Ratings is empty
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsTutor reports whether the profile belongs to a tutor.
func (u *User) IsTutor() bool {
	return u.Role == RoleTutor
}

// FullName joins name and surname.
func (u *User) FullName() string {
	if u.Surname == "" {
		return u.Name
	}
	return u.Name + " " + u.Surname
}

// Public returns a copy of the profile as other users see it: contact
// details (e-mail, linked Telegram chat) are removed.
func (u *User) Public() *User {
	c := *u
	c.Email = ""
	c.TelegramChatID = nil
	return &c
}

// RatingSummary is the state of a profile's ratings right after an append.
type RatingSummary struct {
	UserID        string  `json:"user_id"`
	Ratings       []int   `json:"ratings"`
	AverageRating float64 `json:"average_rating"`
}

// AverageFunc recomputes a profile average from the full ratings list.
type AverageFunc func(ratings []int) (float64, error)
