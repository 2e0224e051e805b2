package profileRepo

import (
	"context"
	"errors"

	"mentorbook/models"
)

// ErrNotFound is returned when the requested profile does not exist.
var ErrNotFound = errors.New("profile not found")

// ProfileRepository reads mentee, mentor and service documents. The scheduling
// engine only reads them; profile management lives elsewhere.
type ProfileRepository interface {
	GetMentee(ctx context.Context, id string) (*models.Mentee, error)
	GetMentor(ctx context.Context, id string) (*models.Mentor, error)
	GetService(ctx context.Context, id string) (*models.Service, error)
}
