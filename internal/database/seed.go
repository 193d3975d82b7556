package database

import (
	"context"
	"fmt"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// Seeder is implemented by stores that accept direct user/device registration
type Seeder interface {
	UpsertUser(ctx context.Context, u *models.User) error
	UpsertDevice(ctx context.Context, d *models.Device) error
}

// Seed registers users and then devices. Devices must reference a seeded or
// already stored user.
func Seed(ctx context.Context, s Seeder, users []models.User, devices []models.Device) error {
	for i := range users {
		if err := s.UpsertUser(ctx, &users[i]); err != nil {
			return fmt.Errorf("seed user %s: %w", users[i].Username, err)
		}
	}
	for i := range devices {
		d := &devices[i]
		if _, err := models.ParseDeviceType(d.Type); err != nil {
			return fmt.Errorf("seed device %s: %w", d.ID, err)
		}
		if d.Status == "" {
			d.Status = models.StatusOffline
		}
		if err := s.UpsertDevice(ctx, d); err != nil {
			return fmt.Errorf("seed device %s: %w", d.ID, err)
		}
	}
	return nil
}
