package service

import (
	"context"
	"io"

	"studiobook/internal/domain"
	"studiobook/internal/export"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

type ClientService struct {
	repo   domain.Repository
	clock  Clock
	logger *zerolog.Logger
}

func NewClientService(repo domain.Repository, clock Clock, logger *zerolog.Logger) *ClientService {
	return &ClientService{repo: repo, clock: clock, logger: logger}
}

func (s *ClientService) ListClients(ctx context.Context, search string) ([]*models.ClientSummary, error) {
	return s.repo.ListClients(ctx, search, formatDay(s.clock.Today()))
}

// ExportClients writes the full client listing as XLSX.
func (s *ClientService) ExportClients(ctx context.Context, w io.Writer) error {
	clients, err := s.ListClients(ctx, "")
	if err != nil {
		return err
	}
	return export.ClientsXLSX(w, clients, s.clock.now())
}

func (s *ClientService) ClientDetail(ctx context.Context, clientID int64) (*models.ClientDetail, error) {
	identity, err := s.repo.GetIdentityByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if identity.Role != models.RoleClient {
		return nil, domain.ErrIdentityNotFound
	}

	packages, err := s.repo.GetClientPackages(ctx, clientID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repo.GetClientReservations(ctx, clientID)
	if err != nil {
		return nil, err
	}

	detail := &models.ClientDetail{
		Client:       *identity,
		Packages:     make([]models.ClassPackage, 0, len(packages)),
		Reservations: make([]models.ReservationDetail, 0, len(reservations)),
	}
	for _, p := range packages {
		detail.Packages = append(detail.Packages, *p)
	}
	for _, r := range reservations {
		detail.Reservations = append(detail.Reservations, *r)
	}
	return detail, nil
}
