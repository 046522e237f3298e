package engine

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/aethra/clientdesk/internal/activity"
)

const (
	lockAgencyQuery = "SELECT \\* FROM `agency_settings` WHERE agency_id = \\?.* FOR UPDATE"
	settingsQuery   = "SELECT \\* FROM `general_settings` WHERE agency_id = \\?"
	nameCountQuery  = "SELECT count\\(\\*\\) FROM `clients` WHERE .*LOWER\\(name\\) = \\?"
)

func newMockMySQL(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func agencyRow(agencyID uuid.UUID, format string, seq int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"agency_id", "customer_id_format", "customer_seq_year", "customer_seq"}).
		AddRow(agencyID.String(), format, 2026, seq)
}

func TestCreateLocksAgencyBeforeNameCheck(t *testing.T) {
	db, mock := newMockMySQL(t)
	notifier := &recordingNotifier{}
	clients := NewClientEngine(db, nil, notifier, time.Hour, zap.NewNop())
	clients.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	actor := Actor{UserID: uuid.New(), AgencyID: uuid.New()}

	mock.ExpectBegin()
	mock.ExpectQuery(lockAgencyQuery).WillReturnRows(agencyRow(actor.AgencyID, "C-{SEQ}", 4))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `clients` WHERE .*customer_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE `agency_settings` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(settingsQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(nameCountQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := clients.Create(context.Background(), actor, individual("Taken"), nil)
	requireDuplicate(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, notifier.byAction(activity.ActionClientCreated))
}

func TestRenameLocksAgencyBeforeNameCheck(t *testing.T) {
	db, mock := newMockMySQL(t)
	agencyID := uuid.New()

	mock.ExpectQuery(lockAgencyQuery).WillReturnRows(agencyRow(agencyID, "C-{SEQ}", 9))
	mock.ExpectQuery(settingsQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(nameCountQuery).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	require.NoError(t, reserveClientName(db, agencyID, "Renamed", uuid.New()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
