package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

const (
	userID1        = "3f2b7c1e-8a4d-4e5f-9b6a-1c2d3e4f5a6b"
	roleID1        = "7d9e0f1a-2b3c-4d5e-8f6a-7b8c9d0e1f2a"
	accessRightID1 = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
	addressID1     = "0c1d2e3f-4a5b-4c6d-9e7f-8a9b0c1d2e3f"
	missingID      = "99999999-9999-4999-9999-999999999999"
)

var (
	userCols        = []string{"id", "username", "firstname", "lastname", "adress_id", "active"}
	roleCols        = []string{"id", "rolename", "active"}
	accessRightCols = []string{"id", "description"}
	addressCols     = []string{"id", "street", "postalcode"}
)

// newMockDB returns an sqlx handle backed by sqlmock; expectations must all be met by the
// end of the test
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

func jsonBody(v interface{}) io.Reader {
	if s, ok := v.(string); ok {
		return bytes.NewBufferString(s)
	}
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func serve(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return v
}

// expectNoRoles queues an empty role lookup for one user
func expectNoRoles(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM roles r.*JOIN users_roles").
		WillReturnRows(sqlmock.NewRows(roleCols))
}

// expectOneRole queues a role lookup returning roleID1 granting accessRightID1
func expectOneRole(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM roles r.*JOIN users_roles").
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow(roleID1, "Administrator", true))
	mock.ExpectQuery("FROM accessrights ar.*JOIN roles_accessrights").
		WithArgs(roleID1).
		WillReturnRows(sqlmock.NewRows(accessRightCols).AddRow(accessRightID1, "Users:Read"))
}
