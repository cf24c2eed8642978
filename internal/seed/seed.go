package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"studiobook/internal/auth"
	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// Schedule is the YAML document describing studio staff, clients, classes
// and prepaid packages.
type Schedule struct {
	Identities []Identity  `yaml:"identities"`
	Slots      []Slot      `yaml:"slots"`
	Recurring  []Recurring `yaml:"recurring"`
	Packages   []Package   `yaml:"packages"`
}

type Identity struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Phone       string `yaml:"phone"`
	Role        string `yaml:"role"`
	Password    string `yaml:"password"`
}

type Slot struct {
	Date       string `yaml:"date"`
	StartTime  string `yaml:"start_time"`
	EndTime    string `yaml:"end_time"`
	Capacity   int    `yaml:"capacity"`
	Instructor string `yaml:"instructor"`
}

// Recurring expands into one slot per matching weekday between From and To.
type Recurring struct {
	Days       []string `yaml:"days"`
	From       string   `yaml:"from"`
	To         string   `yaml:"to"`
	StartTime  string   `yaml:"start_time"`
	EndTime    string   `yaml:"end_time"`
	Capacity   int      `yaml:"capacity"`
	Instructor string   `yaml:"instructor"`
}

type Package struct {
	Client           string `yaml:"client"`
	Name             string `yaml:"name"`
	ClassesTotal     int    `yaml:"classes_total"`
	ClassesRemaining *int   `yaml:"classes_remaining"`
	ExpiresAt        string `yaml:"expires_at"`
}

// Store is what the loader writes through.
type Store interface {
	UpsertIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindSlot(ctx context.Context, date, startTime string, instructorID int64) (*models.ClassSlot, error)
	CreateSlot(ctx context.Context, slot *models.ClassSlot) error
	GetClientPackages(ctx context.Context, clientID int64) ([]*models.ClassPackage, error)
	CreatePackage(ctx context.Context, p *models.ClassPackage) error
}

// Result counts what Apply changed.
type Result struct {
	Identities int
	Slots      int
	Packages   int
}

func Load(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Schedule, error) {
	var s Schedule
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	return &s, nil
}

// Apply writes the schedule. Identities are upserted by email; slots and
// packages that already exist are left alone, so running it twice is safe.
func Apply(ctx context.Context, store Store, s *Schedule, logger *zerolog.Logger) (Result, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	var res Result

	for _, in := range s.Identities {
		role, ok := models.ParseRole(in.Role)
		if !ok || role == models.RoleGuest {
			return res, domain.Validationf("identity %s: unknown role %q", in.Email, in.Role)
		}
		identity := &models.Identity{
			Email:       strings.ToLower(strings.TrimSpace(in.Email)),
			DisplayName: in.DisplayName,
			Phone:       in.Phone,
			Role:        role,
		}
		if in.Password != "" {
			hash, err := auth.HashPassword(in.Password)
			if err != nil {
				return res, err
			}
			identity.PasswordHash = hash
		}
		if err := store.UpsertIdentity(ctx, identity); err != nil {
			return res, fmt.Errorf("identity %s: %w", in.Email, err)
		}
		res.Identities++
	}

	slots := append([]Slot(nil), s.Slots...)
	for _, r := range s.Recurring {
		expanded, err := r.expand()
		if err != nil {
			return res, err
		}
		slots = append(slots, expanded...)
	}
	for _, in := range slots {
		created, err := applySlot(ctx, store, in)
		if err != nil {
			return res, fmt.Errorf("slot %s %s: %w", in.Date, in.StartTime, err)
		}
		if created {
			res.Slots++
		}
	}

	for _, in := range s.Packages {
		created, err := applyPackage(ctx, store, in)
		if err != nil {
			return res, fmt.Errorf("package %s for %s: %w", in.Name, in.Client, err)
		}
		if created {
			res.Packages++
		}
	}

	logger.Info().Int("identities", res.Identities).Int("slots", res.Slots).Int("packages", res.Packages).Msg("schedule applied")
	return res, nil
}

func lookupID(ctx context.Context, store Store, email string) (int64, error) {
	if email == "" {
		return 0, nil
	}
	identity, err := store.GetIdentityByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return 0, err
	}
	return identity.ID, nil
}

func applySlot(ctx context.Context, store Store, in Slot) (bool, error) {
	instructorID, err := lookupID(ctx, store, in.Instructor)
	if err != nil {
		return false, err
	}
	_, err = store.FindSlot(ctx, in.Date, in.StartTime, instructorID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrSlotNotFound) {
		return false, err
	}
	slot := &models.ClassSlot{
		Date:         in.Date,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		CapacityMax:  in.Capacity,
		InstructorID: instructorID,
	}
	return true, store.CreateSlot(ctx, slot)
}

func applyPackage(ctx context.Context, store Store, in Package) (bool, error) {
	clientID, err := lookupID(ctx, store, in.Client)
	if err != nil {
		return false, err
	}
	if clientID == 0 {
		return false, domain.Validationf("client is required")
	}
	existing, err := store.GetClientPackages(ctx, clientID)
	if err != nil {
		return false, err
	}
	for _, p := range existing {
		if p.Name == in.Name && p.ExpiresAt == in.ExpiresAt {
			return false, nil
		}
	}

	remaining := in.ClassesTotal
	if in.ClassesRemaining != nil {
		remaining = *in.ClassesRemaining
	}
	return true, store.CreatePackage(ctx, &models.ClassPackage{
		ClientID:         clientID,
		Name:             in.Name,
		ClassesTotal:     in.ClassesTotal,
		ClassesRemaining: remaining,
		ExpiresAt:        in.ExpiresAt,
		Active:           true,
	})
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func (r Recurring) expand() ([]Slot, error) {
	from, err := time.Parse(models.DateLayout, r.From)
	if err != nil {
		return nil, domain.Validationf("recurring from %q", r.From)
	}
	to, err := time.Parse(models.DateLayout, r.To)
	if err != nil {
		return nil, domain.Validationf("recurring to %q", r.To)
	}
	days := make(map[time.Weekday]bool, len(r.Days))
	for _, d := range r.Days {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, domain.Validationf("unknown weekday %q", d)
		}
		days[wd] = true
	}

	var out []Slot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if days[d.Weekday()] {
			out = append(out, Slot{
				Date:       d.Format(models.DateLayout),
				StartTime:  r.StartTime,
				EndTime:    r.EndTime,
				Capacity:   r.Capacity,
				Instructor: r.Instructor,
			})
		}
	}
	return out, nil
}
