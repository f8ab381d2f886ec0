package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxUserNameLength = 50
	MinPasswordLength = 6
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// NormalizeEmail lower-cases and trims an address so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r RegisterInput) Validate() error {
	var problems []string

	name := strings.TrimSpace(r.Name)
	switch {
	case name == "":
		problems = append(problems, "Please provide a name")
	case utf8.RuneCountInString(name) > MaxUserNameLength:
		problems = append(problems, "Name cannot exceed 50 characters")
	}

	email := NormalizeEmail(r.Email)
	switch {
	case email == "":
		problems = append(problems, "Please provide an email")
	case !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@"):
		problems = append(problems, "Please provide a valid email")
	}

	if len(r.Password) < MinPasswordLength {
		problems = append(problems, "Password must be at least 6 characters")
	}
	if r.Role != "" && !r.Role.Valid() {
		problems = append(problems, string(r.Role)+" is not a valid role")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
