package httpx

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newVerifier(t *testing.T, now time.Time) (*credentialsVerifier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return &credentialsVerifier{db: db, now: func() time.Time { return now }}, mock
}

func TestValidateUser(t *testing.T) {
	cv, mock := newVerifier(t, time.Now())
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/api/login", nil)

	mock.ExpectQuery("SELECT password_hash FROM user").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
	assert.NoError(t, cv.ValidateUser("admin", "s3cret", "", r))

	mock.ExpectQuery("SELECT password_hash FROM user").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
	assert.ErrorIs(t, cv.ValidateUser("admin", "wrong", "", r), bcrypt.ErrMismatchedHashAndPassword)

	mock.ExpectQuery("SELECT password_hash FROM user").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	assert.Error(t, cv.ValidateUser("ghost", "s3cret", "", r))
}

func TestStoreTokenID(t *testing.T) {
	cv, mock := newVerifier(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	mock.ExpectExec("INSERT INTO token").
		WithArgs("admin", "t1", "r1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	assert.NoError(t, cv.StoreTokenID(oauth.UserToken, "admin", "t1", "r1"))
}

func TestValidateTokenID(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cv, mock := newVerifier(t, now)

	mock.ExpectQuery("DELETE FROM token").
		WithArgs("admin", "t1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"expiration"}).AddRow(now.Add(time.Hour)))
	assert.NoError(t, cv.ValidateTokenID(oauth.UserToken, "admin", "t1", "r1"))

	mock.ExpectQuery("DELETE FROM token").
		WithArgs("admin", "t1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"expiration"}).AddRow(now.Add(-time.Hour)))
	assert.ErrorIs(t, cv.ValidateTokenID(oauth.UserToken, "admin", "t1", "r1"), errRefresh)

	mock.ExpectQuery("DELETE FROM token").
		WithArgs("admin", "t1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"expiration"}))
	assert.ErrorIs(t, cv.ValidateTokenID(oauth.UserToken, "admin", "t1", "r1"), errRefresh, "already used")
}

func TestAddClaims(t *testing.T) {
	cv := &credentialsVerifier{}
	claims, err := cv.AddClaims(oauth.UserToken, "admin", "t1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims["roles"])

	assert.Error(t, cv.ValidateClient("client", "secret", "", nil))
}
