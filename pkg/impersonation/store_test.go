package impersonation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "admin_actor_id", "impersonated_actor_id", "started_at", "ended_at",
		"reason", "ip_address", "user_agent", "end_reason",
	})
}

func TestStartSession(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()
	cutoff := now.Add(-30 * time.Minute)

	// Closing the previous session and inserting the new one happen in
	// one transaction. The close is bounded by the cutoff so a
	// timed-out row is left for the sweep.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE impersonation_sessions").
		WithArgs(now, "new_session", int64(1), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO impersonation_sessions").
		WithArgs(int64(1), int64(2), now, "debugging customer issue", "10.0.0.1", "curl/8").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	session := &Session{
		AdminActorID:        1,
		ImpersonatedActorID: 2,
		Reason:              "debugging customer issue",
		IPAddress:           "10.0.0.1",
		UserAgent:           "curl/8",
	}
	require.NoError(t, store.StartSession(context.Background(), session, now, cutoff))
	assert.Equal(t, int64(5), session.ID)
	assert.Equal(t, now, session.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSessionRollsBackOnInsertFailure(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE impersonation_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO impersonation_sessions").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	session := &Session{AdminActorID: 1, ImpersonatedActorID: 2, Reason: "debugging customer issue"}
	require.Error(t, store.StartSession(context.Background(), session, now, now.Add(-30*time.Minute)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndSession(t *testing.T) {
	now := time.Now().UTC()

	t.Run("open session", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectExec("UPDATE impersonation_sessions").
			WithArgs(now, "manual_stop", int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.EndSession(context.Background(), 5, EndReasonManualStop, now))
	})

	t.Run("already ended", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectExec("UPDATE impersonation_sessions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := store.EndSession(context.Background(), 5, EndReasonManualStop, now)
		assert.ErrorIs(t, err, ErrAlreadyEnded)
	})

	t.Run("missing session", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectExec("UPDATE impersonation_sessions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := store.EndSession(context.Background(), 99, EndReasonManualStop, now)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestGetOpenSession(t *testing.T) {
	now := time.Now().UTC()
	cutoff := now.Add(-30 * time.Minute)

	t.Run("found", func(t *testing.T) {
		store, mock := setupStore(t)
		rows := sessionRows().
			AddRow(5, 1, 2, now.Add(-10*time.Minute), nil, "debugging customer issue", "10.0.0.1", nil, nil)

		mock.ExpectQuery("SELECT (.+) FROM impersonation_sessions").
			WithArgs(int64(1), cutoff).
			WillReturnRows(rows)

		session, err := store.GetOpenSession(context.Background(), 1, cutoff)
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, int64(5), session.ID)
		assert.Nil(t, session.EndedAt)
		assert.Equal(t, "10.0.0.1", session.IPAddress)
	})

	t.Run("none open", func(t *testing.T) {
		store, mock := setupStore(t)
		mock.ExpectQuery("SELECT (.+) FROM impersonation_sessions").
			WillReturnRows(sessionRows())

		session, err := store.GetOpenSession(context.Background(), 1, cutoff)
		require.NoError(t, err)
		assert.Nil(t, session)
	})
}

func TestGetSession(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()
	ended := now.Add(-time.Minute)

	rows := sessionRows().
		AddRow(5, 1, 2, now.Add(-time.Hour), ended, "debugging customer issue", nil, nil, "timeout")

	mock.ExpectQuery("SELECT (.+) FROM impersonation_sessions").
		WithArgs(int64(5)).
		WillReturnRows(rows)

	session, err := store.GetSession(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
	require.NotNil(t, session.EndReason)
	assert.Equal(t, EndReasonTimeout, *session.EndReason)
}

func TestCloseTimedOut(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()
	cutoff := now.Add(-30 * time.Minute)

	mock.ExpectExec("UPDATE impersonation_sessions").
		WithArgs(now, "timeout", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.CloseTimedOut(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCountOpenSessions(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.CountOpenSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
