package staff

import "time"

type User struct {
	UserID    int64
	Name      string
	Email     string
	Role      string
	CreatedAt time.Time
}

func (u User) toDTO() UserResponse {
	return UserResponse{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.UTC(),
	}
}
