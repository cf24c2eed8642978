package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func day(offset int) string {
	return time.Now().AddDate(0, 0, offset).Format(models.DateLayout)
}

func createIdentity(t *testing.T, db *DB, email string, role models.Role) *models.Identity {
	t.Helper()
	identity := &models.Identity{Email: email, DisplayName: email, Role: role}
	require.NoError(t, db.CreateIdentity(context.Background(), identity))
	return identity
}

func createSlot(t *testing.T, db *DB, date string, capacity, current int, instructorID int64) *models.ClassSlot {
	t.Helper()
	slot := &models.ClassSlot{
		Date:            date,
		StartTime:       "09:00",
		EndTime:         "10:00",
		CapacityMax:     capacity,
		CapacityCurrent: current,
		InstructorID:    instructorID,
	}
	require.NoError(t, db.CreateSlot(context.Background(), slot))
	return slot
}

func createPackage(t *testing.T, db *DB, clientID int64, total, remaining int, expires string) *models.ClassPackage {
	t.Helper()
	p := &models.ClassPackage{
		ClientID:         clientID,
		Name:             "Pack",
		ClassesTotal:     total,
		ClassesRemaining: remaining,
		ExpiresAt:        expires,
		Active:           true,
	}
	require.NoError(t, db.CreatePackage(context.Background(), p))
	return p
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestNewDB_ReopenKeepsSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	createIdentity(t, db, "ana@example.com", models.RoleClient)
	require.NoError(t, db.Close())

	db, err = NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetIdentityByEmail(context.Background(), "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, got.Role)
}

func TestNewDB_Error(t *testing.T) {
	dir := t.TempDir()
	_, err := NewDB(dir, nil)
	assert.Error(t, err)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestSlots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	instructor := createIdentity(t, db, "lucia@example.com", models.RoleInstructor)
	other := createIdentity(t, db, "marta@example.com", models.RoleInstructor)

	s1 := createSlot(t, db, day(1), 5, 4, instructor.ID)
	s2 := createSlot(t, db, day(1), 5, 5, other.ID)
	s3 := createSlot(t, db, day(3), 8, 0, instructor.ID)

	t.Run("GetSlot", func(t *testing.T) {
		got, err := db.GetSlot(ctx, s1.ID)
		require.NoError(t, err)
		assert.Equal(t, instructor.DisplayName, got.InstructorName)
		assert.True(t, got.Available)

		got, err = db.GetSlot(ctx, s2.ID)
		require.NoError(t, err)
		assert.False(t, got.Available)

		_, err = db.GetSlot(ctx, 999)
		assert.ErrorIs(t, err, domain.ErrSlotNotFound)
	})

	t.Run("ByDateAndRange", func(t *testing.T) {
		slots, err := db.GetSlotsByDate(ctx, day(1))
		require.NoError(t, err)
		assert.Len(t, slots, 2)

		slots, err = db.GetSlotsInRange(ctx, day(0), day(5))
		require.NoError(t, err)
		require.Len(t, slots, 3)
		assert.Equal(t, s3.ID, slots[2].ID)
	})

	t.Run("FindSlot", func(t *testing.T) {
		got, err := db.FindSlot(ctx, day(3), "09:00", instructor.ID)
		require.NoError(t, err)
		assert.Equal(t, s3.ID, got.ID)
	})

	t.Run("InstructorCalendar", func(t *testing.T) {
		calendar, err := db.GetInstructorCalendar(ctx, instructor.ID, day(0), day(5))
		require.NoError(t, err)
		assert.Len(t, calendar, 2)

		all, err := db.GetInstructorCalendar(ctx, 0, day(0), day(5))
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("InvalidCapacity", func(t *testing.T) {
		err := db.CreateSlot(ctx, &models.ClassSlot{Date: day(1), StartTime: "11:00", EndTime: "12:00", CapacityMax: 2, CapacityCurrent: 3})
		assert.Error(t, err)
	})
}

func TestPackages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	client := createIdentity(t, db, "ana@example.com", models.RoleClient)

	createPackage(t, db, client.ID, 10, 0, day(30))
	expired := createPackage(t, db, client.ID, 10, 5, day(-1))
	later := createPackage(t, db, client.ID, 10, 5, day(60))
	sooner := createPackage(t, db, client.ID, 10, 2, day(20))

	pkgs, err := db.GetClientPackages(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, pkgs, 4)
	assert.Equal(t, expired.ID, pkgs[0].ID)

	eligible, err := db.GetEligiblePackage(ctx, client.ID, day(0))
	require.NoError(t, err)
	assert.Equal(t, sooner.ID, eligible.ID)
	assert.NotEqual(t, later.ID, eligible.ID)

	_, err = db.GetEligiblePackage(ctx, 999, day(0))
	assert.ErrorIs(t, err, domain.ErrNoEligiblePackage)
}

func TestIdentities(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := createIdentity(t, db, "admin@example.com", models.RoleAdmin)

	byID, err := db.GetIdentityByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", byID.Email)

	err = db.CreateIdentity(ctx, &models.Identity{Email: "ADMIN@example.com", Role: models.RoleClient})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = db.CreateIdentity(ctx, &models.Identity{Email: "x@example.com", Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	up := &models.Identity{Email: "admin@example.com", DisplayName: "Root", Role: models.RoleAdmin}
	require.NoError(t, db.UpsertIdentity(ctx, up))
	assert.Equal(t, created.ID, up.ID)

	_, err = db.GetIdentityByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestListClients(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ana := createIdentity(t, db, "ana@example.com", models.RoleClient)
	bea := createIdentity(t, db, "bea@example.com", models.RoleClient)
	createIdentity(t, db, "lucia@example.com", models.RoleInstructor)

	createPackage(t, db, ana.ID, 10, 3, day(10))
	createPackage(t, db, ana.ID, 5, 2, day(40))
	createPackage(t, db, bea.ID, 5, 5, day(-2))

	clients, err := db.ListClients(ctx, "", day(0))
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, 2, clients[0].ActivePackages)
	assert.Equal(t, 5, clients[0].ClassesAvailable)
	assert.Equal(t, 0, clients[1].ClassesAvailable)

	clients, err = db.ListClients(ctx, "BEA", day(0))
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, bea.ID, clients[0].ID)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	_, err = db.GetSlotsByDate(ctx, day(0))
	assert.Error(t, err)
	_, err = db.CreateReservation(ctx, 1, 1, 0, day(0))
	assert.Error(t, err)
	err = db.CreateSyncTask(ctx, &models.SyncTask{})
	assert.Error(t, err)
	_, err = db.ListClients(ctx, "", day(0))
	assert.Error(t, err)
}
