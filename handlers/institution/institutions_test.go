package institution

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edumesh/edumesh-api/model"
	"github.com/edumesh/edumesh-api/services"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Institution{},
		&model.User{},
		&model.DeleteOperation{},
	))
	return db
}

// newTestApp mounts the read endpoints behind a stub that injects the
// given user the way the auth middleware would.
func newTestApp(t *testing.T, db *gorm.DB, user *model.User) *fiber.App {
	t.Helper()

	h := NewInstitutionHandler(db, services.NewDeletionService(db, services.NewMemoryProgressStore(time.Hour)))

	app := fiber.New()
	inject := func(c *fiber.Ctx) error {
		c.Locals("user", user)
		return c.Next()
	}
	app.Get("/institutions", inject, h.ListInstitutions)
	app.Get("/institutions/:id", inject, h.GetInstitution)
	return app
}

func seedRegion(t *testing.T, db *gorm.DB, name string) *model.Institution {
	t.Helper()
	inst := &model.Institution{
		Name:            name,
		Type:            "region",
		InstitutionCode: name,
		Level:           model.InstitutionLevelRegion,
		IsActive:        true,
	}
	require.NoError(t, db.Create(inst).Error)
	return inst
}

func getJSON(t *testing.T, app *fiber.App, path string, out interface{}) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGetInstitutionArchivedVisibleToManagersOnly(t *testing.T) {
	db := openTestDB(t)

	region := seedRegion(t, db, "region-1")
	require.NoError(t, db.Delete(region).Error) // archive it

	admin := &model.User{Email: "root@ministry", PasswordHash: "x", Name: "Root", Role: model.RoleSuperAdmin}
	require.NoError(t, db.Create(admin).Error)

	var body struct {
		Data model.Institution `json:"data"`
	}
	status := getJSON(t, newTestApp(t, db, admin), fmt.Sprintf("/institutions/%d", region.ID), &body)
	require.Equal(t, http.StatusOK, status, "a manager can inspect the node they just archived")
	assert.True(t, body.Data.ArchivedAt.Valid)

	// A non-managing role scoped to the same node still gets a 404 for the
	// archived row.
	principal := &model.User{Email: "head@region-1", PasswordHash: "x", Name: "Head", Role: model.RoleSchoolAdmin, InstitutionID: &region.ID}
	require.NoError(t, db.Create(principal).Error)

	status = getJSON(t, newTestApp(t, db, principal), fmt.Sprintf("/institutions/%d", region.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListInstitutionsIncludeArchived(t *testing.T) {
	db := openTestDB(t)

	live := seedRegion(t, db, "region-live")
	archived := seedRegion(t, db, "region-archived")
	require.NoError(t, db.Delete(archived).Error)

	admin := &model.User{Email: "root@ministry", PasswordHash: "x", Name: "Root", Role: model.RoleSuperAdmin}
	require.NoError(t, db.Create(admin).Error)
	app := newTestApp(t, db, admin)

	var body struct {
		Data []model.Institution `json:"data"`
	}

	status := getJSON(t, app, "/institutions", &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body.Data, 1, "archived rows are hidden by default")
	assert.Equal(t, live.ID, body.Data[0].ID)

	body.Data = nil
	status = getJSON(t, app, "/institutions?include_archived=true", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body.Data, 2)

	// The flag is a no-op for roles without institution management.
	principal := &model.User{Email: "head@region-archived", PasswordHash: "x", Name: "Head", Role: model.RoleSchoolAdmin, InstitutionID: &archived.ID}
	require.NoError(t, db.Create(principal).Error)

	body.Data = nil
	status = getJSON(t, newTestApp(t, db, principal), "/institutions?include_archived=true", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body.Data)
}
