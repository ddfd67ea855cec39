package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vircadia/world-realtime-core/internal/models"
)

func TestCaptureTickFirstTickForGroup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewForTesting(db)

	group := models.SyncGroup{Name: "public.NORMAL", ServerTickIntervalMs: 50, MaxTicks: 5}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(group.Name).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM ticks").WithArgs(group.Name, group.MaxTicks).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT max\\(number\\) FROM ticks").WithArgs(group.Name).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec("INSERT INTO ticks").WithArgs(group.Name, int64(1), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entity_snapshots").WithArgs(group.Name, int64(1)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO script_snapshots").WithArgs(group.Name, int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO asset_snapshots").WithArgs(group.Name, int64(1)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE ticks SET end_time").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tick, err := p.CaptureTick(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tick.Number)
	assert.Equal(t, 3, tick.EntityStatesProcessed)
	assert.Equal(t, 1, tick.ScriptStatesProcessed)
	assert.Equal(t, 0, tick.AssetStatesProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaptureTickAdvancesNumberFromPrevious(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewForTesting(db)

	group := models.SyncGroup{Name: "public.NORMAL", ServerTickIntervalMs: 50, MaxTicks: 5}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM ticks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT max\\(number\\) FROM ticks").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectExec("INSERT INTO ticks").WithArgs(group.Name, int64(5), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entity_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO script_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO asset_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE ticks SET end_time").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tick, err := p.CaptureTick(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tick.Number)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaptureTickRollsBackOnSnapshotFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewForTesting(db)

	group := models.SyncGroup{Name: "public.NORMAL", ServerTickIntervalMs: 50, MaxTicks: 5}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM ticks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT max\\(number\\) FROM ticks").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec("INSERT INTO ticks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entity_snapshots").WillReturnError(assertErr("connection reset"))
	mock.ExpectRollback()

	_, err = p.CaptureTick(context.Background(), group)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDiffEntitiesClassifiesInsertUpdateDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewForTesting(db)

	rows := sqlmock.NewRows([]string{"id", "cur", "prev"}).
		AddRow("e-new", `{"x":1}`, nil).
		AddRow("e-gone", nil, `{"x":1}`).
		AddRow("e-changed", `{"x":2,"y":9}`, `{"x":1,"y":9}`).
		AddRow("e-same", `{"x":1}`, `{"x":1}`)

	mock.ExpectQuery("FROM entity_snapshots").WillReturnRows(rows)

	changes, err := p.DiffEntities(context.Background(), "public.NORMAL")
	require.NoError(t, err)
	require.Len(t, changes, 3)

	byID := make(map[string]models.Change, len(changes))
	for _, c := range changes {
		byID[c.ID] = c
	}

	require.Contains(t, byID, "e-new")
	assert.Equal(t, models.OpInsert, byID["e-new"].Operation)
	assert.Equal(t, map[string]interface{}{"x": float64(1)}, byID["e-new"].Fields)

	require.Contains(t, byID, "e-gone")
	assert.Equal(t, models.OpDelete, byID["e-gone"].Operation)

	require.Contains(t, byID, "e-changed")
	assert.Equal(t, models.OpUpdate, byID["e-changed"].Operation)
	assert.Equal(t, map[string]interface{}{"x": float64(2)}, byID["e-changed"].Fields)

	assert.NotContains(t, byID, "e-same")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDiffScriptsUsesAuditOperationNotPresence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewForTesting(db)

	rows := sqlmock.NewRows([]string{"id", "operation", "cur", "prev"}).
		AddRow("s-new", "INSERT", `{"general__script_id":"s-new","body":"a"}`, nil).
		AddRow("s-changed", "UPDATE", `{"general__script_id":"s-changed","body":"b"}`, `{"general__script_id":"s-changed","body":"a"}`).
		AddRow("s-no-snapshot", "UPDATE", `{"general__script_id":"s-no-snapshot","body":"c"}`, nil).
		AddRow("s-removed", "DELETE", nil, `{"general__script_id":"s-removed","body":"z"}`)

	mock.ExpectQuery("FROM audit_log").WillReturnRows(rows)

	changes, err := p.DiffScripts(context.Background(), "public.NORMAL")
	require.NoError(t, err)
	require.Len(t, changes, 4)

	byID := make(map[string]models.Change, len(changes))
	for _, c := range changes {
		byID[c.ID] = c
	}

	assert.Equal(t, models.OpInsert, byID["s-new"].Operation)
	assert.Equal(t, "a", byID["s-new"].Fields["body"])

	// UPDATE with a prior snapshot: only the changed field survives.
	assert.Equal(t, models.OpUpdate, byID["s-changed"].Operation)
	assert.Equal(t, map[string]interface{}{"body": "b"}, byID["s-changed"].Fields)

	// UPDATE with no prior snapshot to diff against: full current record.
	assert.Equal(t, models.OpUpdate, byID["s-no-snapshot"].Operation)
	assert.Equal(t, "c", byID["s-no-snapshot"].Fields["body"])

	assert.Equal(t, models.OpDelete, byID["s-removed"].Operation)
	assert.Nil(t, byID["s-removed"].Fields)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDiffScriptsDropsNoOpUpdates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewForTesting(db)

	rows := sqlmock.NewRows([]string{"id", "operation", "cur", "prev"}).
		AddRow("s-untouched", "UPDATE", `{"body":"a"}`, `{"body":"a"}`)

	mock.ExpectQuery("FROM audit_log").WillReturnRows(rows)

	changes, err := p.DiffScripts(context.Background(), "public.NORMAL")
	require.NoError(t, err)
	assert.Empty(t, changes)
	require.NoError(t, mock.ExpectationsWereMet())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
