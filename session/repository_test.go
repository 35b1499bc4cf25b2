package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/BaSui01/visualflow/internal/database"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 Repository 测试（SQLite）
// =============================================================================

func newSQLiteRepo(t *testing.T) *Repository {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "sessions.db")), &gorm.Config{})
	require.NoError(t, err)
	pool, err := database.NewPoolManager(gormDB, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	require.NoError(t, pool.DB().AutoMigrate(&VideoSession{}))
	return NewRepository(pool, zaptest.NewLogger(t))
}

func waterCycle() *VideoSession {
	return &VideoSession{
		ID:                "s1",
		UserID:            "u1",
		Topic:             "Water Cycle",
		ConfirmedFacts:    Facts{{Concept: "Evaporation", Details: "sun heats water"}, {Concept: "Condensation"}},
		LearningObjective: "Explain how rain forms",
		ChildAge:          "7",
		ChildInterest:     "space",
	}
}

func TestRepository_SaveAndFind(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, waterCycle()))

	got, err := repo.Find(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Water Cycle", got.Topic)
	assert.Equal(t, "7", got.ChildAge)
	assert.Equal(t, waterCycle().ConfirmedFacts, got.ConfirmedFacts)
	assert.False(t, got.CreatedAt.IsZero())

	// upsert
	updated := waterCycle()
	updated.Topic = "Rain"
	require.NoError(t, repo.Save(ctx, updated))
	got, err = repo.Find(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Rain", got.Topic)
}

func TestRepository_FindNotFound(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, waterCycle()))

	tests := []struct{ name, sessionID, userID string }{
		{"unknown session", "s2", "u1"},
		{"other user", "s1", "u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Find(ctx, tt.sessionID, tt.userID)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestRepository_UpdateScript(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, waterCycle()))

	require.NoError(t, repo.UpdateScript(ctx, "s1", "u1", `{"hook":{}}`))
	got, err := repo.Find(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, `{"hook":{}}`, got.GeneratedScript)

	assert.ErrorIs(t, repo.UpdateScript(ctx, "missing", "u1", "x"), ErrSessionNotFound)
}

func TestRepository_SaveRequiresIDs(t *testing.T) {
	repo := newSQLiteRepo(t)
	assert.Error(t, repo.Save(context.Background(), &VideoSession{ID: "s1"}))
	assert.Error(t, repo.Save(context.Background(), nil))
}

// =============================================================================
// 🧪 Repository 测试（sqlmock）
// =============================================================================

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(gormDB, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, nil)
	require.NoError(t, err)
	return NewRepository(pool, zaptest.NewLogger(t)), mock
}

func TestRepository_FindPostgres(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "topic", "confirmed_facts", "child_age"}).
		AddRow("s1", "u1", "Volcanoes", `["Magma", {"concept": "Lava", "details": "hot"}]`, "10")
	mock.ExpectQuery(`SELECT \* FROM "video_session" WHERE id = \$1 AND user_id = \$2`).
		WithArgs("s1", "u1", 1).
		WillReturnRows(rows)

	got, err := repo.Find(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Volcanoes", got.Topic)
	assert.Equal(t, Facts{{Concept: "Magma"}, {Concept: "Lava", Details: "hot"}}, got.ConfirmedFacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindPostgresErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "video_session"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "video_session"`).
		WillReturnError(assert.AnError)

	_, err := repo.Find(context.Background(), "s1", "u1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = repo.Find(context.Background(), "s1", "u1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

// =============================================================================
// 🧪 Fact 解码测试
// =============================================================================

func TestFacts_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    Facts
		wantErr bool
	}{
		{"null", nil, nil, false},
		{"empty text", "  ", nil, false},
		{"strings", `["Rain", "Snow"]`, Facts{{Concept: "Rain"}, {Concept: "Snow"}}, false},
		{"objects as bytes", []byte(`[{"concept":"Rain","details":"falls"}]`), Facts{{Concept: "Rain", Details: "falls"}}, false},
		{"numeric concept", `[{"concept": 42}]`, Facts{{Concept: "42"}}, false},
		{"mixed", `["Rain", {"details": "orphan"}]`, Facts{{Concept: "Rain"}, {Details: "orphan"}}, false},
		{"not a list", `{"concept":"Rain"}`, nil, true},
		{"bad entry", `[true]`, nil, true},
		{"bad type", 12, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Facts
			err := f.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestFacts_ValueAndConcepts(t *testing.T) {
	v, err := Facts(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	facts := Facts{{Concept: "Rain"}, {Details: "orphan"}, {Concept: " "}, {Concept: "Snow", Details: "cold"}}
	v, err = facts.Value()
	require.NoError(t, err)

	var decoded Facts
	require.NoError(t, json.Unmarshal([]byte(v.(string)), &decoded))
	assert.Equal(t, facts, decoded)

	assert.Equal(t, []Fact{{Concept: "Rain"}, {Concept: "Snow", Details: "cold"}}, facts.Concepts())
}
