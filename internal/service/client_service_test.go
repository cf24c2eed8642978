package service

import (
	"bytes"
	"context"
	"testing"

	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewClientService(f.db, f.clock, f.logger)

	ana := f.identity(t, "ana@example.com", models.RoleClient)
	f.pkg(t, ana.ID, 10, 4, "2025-03-01")
	f.pkg(t, ana.ID, 5, 5, "2024-12-01")
	instructor := f.identity(t, "lucia@example.com", models.RoleInstructor)

	list, err := svc.ListClients(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ActivePackages)
	assert.Equal(t, 4, list[0].ClassesAvailable)

	detail, err := svc.ClientDetail(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, ana.Email, detail.Client.Email)
	assert.Len(t, detail.Packages, 2)
	assert.Empty(t, detail.Reservations)

	_, err = svc.ClientDetail(ctx, instructor.ID)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportClients(ctx, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
}
