package magiclink

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

func tokenRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "expires_at", "used_at",
		"requested_from_ip", "requested_user_agent", "used_from_ip", "used_user_agent", "created_at",
	})
}

func TestCreateToken(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()
	expires := now.Add(15 * time.Minute)

	mock.ExpectQuery("INSERT INTO magic_link_tokens").
		WithArgs(int64(7), "aabbcc", expires, "10.0.0.1", "curl/8").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, now))

	token := &Token{
		UserID:             7,
		TokenHash:          "aabbcc",
		ExpiresAt:          expires,
		RequestedFromIP:    "10.0.0.1",
		RequestedUserAgent: "curl/8",
	}
	require.NoError(t, store.CreateToken(context.Background(), token))
	assert.Equal(t, int64(3), token.ID)
	assert.Equal(t, now, token.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByHash(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM magic_link_tokens WHERE token_hash").
		WithArgs("aabbcc").
		WillReturnRows(tokenRows().
			AddRow(3, 7, "aabbcc", now.Add(15*time.Minute), nil, "10.0.0.1", "curl/8", nil, nil, now))

	token, err := store.GetByHash(context.Background(), "aabbcc")
	require.NoError(t, err)
	assert.Equal(t, int64(3), token.ID)
	assert.Equal(t, int64(7), token.UserID)
	assert.Nil(t, token.UsedAt)
	assert.Equal(t, "10.0.0.1", token.RequestedFromIP)
	assert.Empty(t, token.UsedFromIP)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByHashNotFound(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectQuery("SELECT (.+) FROM magic_link_tokens WHERE token_hash").
		WithArgs("unknown").
		WillReturnRows(tokenRows())

	_, err := store.GetByHash(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsume(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()

	// Token consumption and login bookkeeping commit together.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE magic_link_tokens").
		WithArgs(now, "10.0.0.2", "firefox", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE actors").
		WithArgs(now, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Consume(context.Background(), 3, 7, now, "10.0.0.2", "firefox"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeAlreadyUsed(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()

	// The conditional update touches no rows when used_at is set; the
	// login bookkeeping never runs.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE magic_link_tokens").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Consume(context.Background(), 3, 7, now, "", "")
	assert.ErrorIs(t, err, ErrTokenUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeRollsBackOnLoginFailure(t *testing.T) {
	store, mock := setupStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE magic_link_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE actors").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.Consume(context.Background(), 3, 7, now, "", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRecentForUser(t *testing.T) {
	store, mock := setupStore(t)
	since := time.Now().UTC().Add(-time.Hour)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM magic_link_tokens").
		WithArgs(int64(7), since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.CountRecentForUser(context.Background(), 7, since)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredBefore(t *testing.T) {
	store, mock := setupStore(t)
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM magic_link_tokens").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	count, err := store.DeleteExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
