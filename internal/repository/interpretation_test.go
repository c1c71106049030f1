package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: filepath.Join(t.TempDir(), "responders.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

var base = time.Date(2025, 8, 11, 19, 0, 0, 0, time.UTC)

func minutes(n int) time.Time {
	return base.Add(time.Duration(n) * time.Minute)
}

func responding(eta time.Time, ref time.Time) pipeline.Result {
	utc := eta.UTC()
	m := int(eta.Sub(ref).Minutes())
	return pipeline.Result{
		Vehicle:             "SAR-7",
		ETALocal:            eta.Format(constants.LocalClockLayout),
		ETATimestampUTC:     &utc,
		MinutesUntilArrival: &m,
		Status:              constants.StatusResponding,
		StatusSource:        constants.SourceLanguageModel,
		ETASource:           constants.SourceDeterministic,
		Confidence:          0.9,
		Evidence:            "ETA 60min",
	}
}

func withStatus(s constants.Status) pipeline.Result {
	return pipeline.Result{
		Vehicle:      constants.VehicleUnknown,
		ETALocal:     constants.ETAUnknown,
		Status:       s,
		StatusSource: constants.SourceRule,
		ETASource:    constants.SourceRule,
	}
}

func save(t *testing.T, repo InterpretationRepository, msgID, sender string, at time.Time, res pipeline.Result) *Record {
	t.Helper()
	rec := &Record{MessageID: msgID, MissionID: "m1", Sender: sender, Text: "text " + msgID, ReceivedAt: at, Result: res}
	require.NoError(t, repo.Save(context.Background(), rec))
	return rec
}

func TestOpenSQLite(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, dialect.SQLite, db.Dialect())
	assert.NoError(t, db.HealthCheck(context.Background(), time.Second))
	// migrating twice is a no-op
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestMigrationStatementsPerDialect(t *testing.T) {
	lite := migrationStatements(dialect.SQLite)
	pg := migrationStatements(dialect.Postgres)
	require.Len(t, lite, 3)
	require.Len(t, pg, 3)

	assert.Contains(t, lite[0], "CREATE TABLE IF NOT EXISTS interpretations")
	assert.Contains(t, lite[0], "confidence         REAL")
	assert.Contains(t, pg[0], "confidence         DOUBLE PRECISION")
	assert.Contains(t, lite[1], "UNIQUE INDEX IF NOT EXISTS interpretations_message_id")
}

func TestSaveAndListByMission(t *testing.T) {
	repo := NewInterpretationRepository(openTestDB(t), nil)
	ctx := context.Background()

	second := save(t, repo, "msg-2", "kit", minutes(5), withStatus(constants.StatusCancelled))
	first := save(t, repo, "msg-1", "alex", minutes(0), responding(minutes(60), minutes(0)))
	save(t, repo, "other", "alex", minutes(1), responding(minutes(30), minutes(1)))
	require.NoError(t, repo.Save(ctx, &Record{MessageID: "x", MissionID: "m2", Sender: "z", ReceivedAt: minutes(2), Result: withStatus(constants.StatusUnknown)}))

	got, err := repo.ListByMission(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "msg-1", got[0].MessageID)
	assert.True(t, minutes(0).Equal(got[0].ReceivedAt))
	assert.Equal(t, "SAR-7", got[0].Result.Vehicle)
	require.NotNil(t, got[0].Result.ETATimestampUTC)
	assert.True(t, minutes(60).Equal(*got[0].Result.ETATimestampUTC))
	assert.Equal(t, 60, *got[0].Result.MinutesUntilArrival)

	assert.Equal(t, "other", got[1].MessageID)
	assert.Equal(t, second.ID, got[2].ID)
	assert.Equal(t, constants.StatusCancelled, got[2].Result.Status)
	assert.Nil(t, got[2].Result.ETATimestampUTC)

	empty, err := repo.ListByMission(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSaveUpsertsByMessageID(t *testing.T) {
	repo := NewInterpretationRepository(openTestDB(t), nil)
	ctx := context.Background()

	save(t, repo, "msg-1", "alex", minutes(0), responding(minutes(60), minutes(0)))
	again := &Record{ID: uuid.New(), MessageID: "msg-1", MissionID: "m1", Sender: "alex", ReceivedAt: minutes(0), Result: withStatus(constants.StatusNotResponding)}
	require.NoError(t, repo.Save(ctx, again))

	got, err := repo.ListByMission(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, constants.StatusNotResponding, got[0].Result.Status)
}

func TestLatestETA(t *testing.T) {
	repo := NewInterpretationRepository(openTestDB(t), nil)
	ctx := context.Background()

	save(t, repo, "1", "alex", minutes(0), responding(minutes(60), minutes(0)))
	save(t, repo, "2", "alex", minutes(10), withStatus(constants.StatusInformational))
	save(t, repo, "3", "alex", minutes(20), responding(minutes(70), minutes(20)))

	eta, err := repo.LatestETA(ctx, "m1", "alex", minutes(30))
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.True(t, minutes(70).Equal(*eta))

	// as of minute 15 the informational note is skipped and the first ETA holds
	eta, err = repo.LatestETA(ctx, "m1", "alex", minutes(15))
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.True(t, minutes(60).Equal(*eta))

	eta, err = repo.LatestETA(ctx, "m1", "alex", minutes(0))
	require.NoError(t, err)
	assert.Nil(t, eta)

	save(t, repo, "4", "alex", minutes(25), withStatus(constants.StatusCancelled))
	eta, err = repo.LatestETA(ctx, "m1", "alex", minutes(30))
	require.NoError(t, err)
	assert.Nil(t, eta, "a cancellation clears the previous eta")

	eta, err = repo.LatestETA(ctx, "m1", "nobody", minutes(30))
	require.NoError(t, err)
	assert.Nil(t, eta)
}

func TestActivePeers(t *testing.T) {
	repo := NewInterpretationRepository(openTestDB(t), nil)
	ctx := context.Background()

	save(t, repo, "1", "alex", minutes(0), responding(minutes(60), minutes(0)))
	save(t, repo, "2", "sam", minutes(1), responding(minutes(40), minutes(1)))
	save(t, repo, "3", "sam", minutes(2), responding(minutes(45), minutes(2)))
	save(t, repo, "4", "kit", minutes(3), responding(minutes(50), minutes(3)))
	save(t, repo, "5", "kit", minutes(4), withStatus(constants.StatusNotResponding))
	save(t, repo, "6", "lee", minutes(5), withStatus(constants.StatusInformational))
	save(t, repo, "7", "me", minutes(6), responding(minutes(90), minutes(6)))
	save(t, repo, "8", "late", minutes(30), responding(minutes(99), minutes(30)))

	ref := minutes(10)
	peers, err := repo.ActivePeers(ctx, "m1", "me", ref, ref)
	require.NoError(t, err)

	assert.Equal(t, []pipeline.PeerETA{
		{Name: "alex", MinutesUntilArrival: 50},
		{Name: "sam", MinutesUntilArrival: 35},
	}, peers)
}
