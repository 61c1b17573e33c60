package roles

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/migrations"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestListRoles(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestDB(t))
	roles, err := svc.ListRoles(context.Background())
	require.NoError(t, err)

	byName := map[string]*models.Role{}
	for _, r := range roles {
		byName[r.Name] = r
	}
	require.Len(t, byName, 3)

	admin := byName[models.RoleAdmin]
	require.NotNil(t, admin)
	assert.True(t, admin.IsSystem)
	assert.True(t, admin.HasPermission(models.ResourceUsers, models.OperationWrite))
	assert.True(t, admin.HasPermission(models.ResourceOrganizations, models.OperationWrite))

	editor := byName[models.RoleEditor]
	require.NotNil(t, editor)
	assert.True(t, editor.HasPermission(models.ResourceCourses, models.OperationWrite))
	assert.False(t, editor.HasPermission(models.ResourceUsers, models.OperationRead))

	viewer := byName[models.RoleViewer]
	require.NotNil(t, viewer)
	assert.True(t, viewer.HasPermission(models.ResourceCourses, models.OperationRead))
	assert.False(t, viewer.HasPermission(models.ResourceCourses, models.OperationWrite))
}

func TestRetrieveRole(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	h := &handler{roleService: NewService(db)}

	roles, err := h.roleService.ListRoles(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, roles)

	e := echo.New()
	rr := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/roles/x", nil), rr)
	c.SetParamNames("id")
	c.SetParamValues("x")
	assert.True(t, errcodes.HasCode(h.retrieve(c), errcodes.CodeNotFound))

	_, err = h.roleService.RetrieveRole(context.Background(), 999)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))

	role, err := h.roleService.RetrieveRole(context.Background(), roles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, roles[0].Name, role.Name)
	assert.NotEmpty(t, role.Permissions)
}
