package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
)

// storeTimeLayout is fixed-width so text order is time order.
const storeTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one interpreted message.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	MessageID  string          `json:"message_id"`
	MissionID  string          `json:"mission_id"`
	Sender     string          `json:"sender"`
	Text       string          `json:"text"`
	ReceivedAt time.Time       `json:"received_at"`
	Result     pipeline.Result `json:"result"`
}

// RosterReader supplies the context an interpretation needs: the sender's own
// previous ETA and the other active responders' ETAs, as of before.
type RosterReader interface {
	LatestETA(ctx context.Context, missionID, sender string, before time.Time) (*time.Time, error)
	ActivePeers(ctx context.Context, missionID, excludeSender string, before, ref time.Time) ([]pipeline.PeerETA, error)
}

type InterpretationRepository interface {
	RosterReader
	Save(ctx context.Context, rec *Record) error
	ListByMission(ctx context.Context, missionID string) ([]*Record, error)
}

type interpretationRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewInterpretationRepository(db *DB, logger *slog.Logger) InterpretationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &interpretationRepository{db: db, logger: logger}
}

var recordColumns = []string{
	"id", "message_id", "mission_id", "sender", "message_text", "received_at",
	"status", "vehicle", "eta_utc", "eta_local", "minutes_until",
	"status_source", "eta_source", "confidence", "evidence", "correction_applied", "result_json",
}

// Save inserts rec; a message seen before (same message_id) is overwritten.
func (r *interpretationRepository) Save(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	res := rec.Result
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var etaUTC, minutes any
	if res.ETATimestampUTC != nil {
		etaUTC = formatStoreTime(*res.ETATimestampUTC)
	}
	if res.MinutesUntilArrival != nil {
		minutes = *res.MinutesUntilArrival
	}
	corrected := 0
	if res.CorrectionApplied {
		corrected = 1
	}

	b := entsql.Dialect(r.db.dialect)
	query, args := b.Insert(interpretationsTable).
		Columns(recordColumns...).
		Values(
			rec.ID.String(), rec.MessageID, rec.MissionID, rec.Sender, rec.Text, formatStoreTime(rec.ReceivedAt),
			string(res.Status), res.Vehicle, etaUTC, res.ETALocal, minutes,
			string(res.StatusSource), string(res.ETASource), res.Confidence, res.Evidence, corrected, string(resultJSON),
		).
		OnConflict(
			entsql.ConflictColumns("message_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to save interpretation", "message_id", rec.MessageID, "mission_id", rec.MissionID, "error", err)
		return fmt.Errorf("save interpretation: %w", err)
	}
	r.logger.Debug("interpretation saved", "id", rec.ID, "message_id", rec.MessageID, "status", res.Status)
	return nil
}

// LatestETA returns the sender's ETA from their latest status-bearing record
// before the given time, or nil when that record is not active or has no ETA.
func (r *interpretationRepository) LatestETA(ctx context.Context, missionID, sender string, before time.Time) (*time.Time, error) {
	b := entsql.Dialect(r.db.dialect)
	t := b.Table(interpretationsTable)
	sel := b.Select(t.C("status"), t.C("eta_utc")).From(t).
		Where(entsql.And(
			entsql.EQ(t.C("mission_id"), missionID),
			entsql.EQ(t.C("sender"), sender),
			entsql.LT(t.C("received_at"), formatStoreTime(before)),
			entsql.NotIn(t.C("status"), string(constants.StatusInformational), string(constants.StatusUnknown)),
		)).
		OrderBy(entsql.Desc(t.C("received_at"))).
		Limit(1)
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to load latest eta", "mission_id", missionID, "sender", sender, "error", err)
		return nil, fmt.Errorf("latest eta: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var status string
	var eta sql.NullString
	if err := rows.Scan(&status, &eta); err != nil {
		return nil, fmt.Errorf("scan latest eta: %w", err)
	}
	if !constants.Status(status).Active() || !eta.Valid {
		return nil, nil
	}
	at, err := parseStoreTime(eta.String)
	if err != nil {
		return nil, err
	}
	return &at, nil
}

// ActivePeers returns, for every other sender in the mission, the ETA of their
// latest status-bearing record before the given time when it is active.
// Minutes are measured against ref.
func (r *interpretationRepository) ActivePeers(ctx context.Context, missionID, excludeSender string, before, ref time.Time) ([]pipeline.PeerETA, error) {
	b := entsql.Dialect(r.db.dialect)
	t := b.Table(interpretationsTable)
	sel := b.Select(t.C("sender"), t.C("status"), t.C("eta_utc")).From(t).
		Where(entsql.And(
			entsql.EQ(t.C("mission_id"), missionID),
			entsql.NEQ(t.C("sender"), excludeSender),
			entsql.LT(t.C("received_at"), formatStoreTime(before)),
			entsql.NotIn(t.C("status"), string(constants.StatusInformational), string(constants.StatusUnknown)),
		)).
		OrderBy(entsql.Desc(t.C("received_at")))
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to load peers", "mission_id", missionID, "error", err)
		return nil, fmt.Errorf("active peers: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var peers []pipeline.PeerETA
	for rows.Next() {
		var sender, status string
		var eta sql.NullString
		if err := rows.Scan(&sender, &status, &eta); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		if seen[sender] {
			continue
		}
		seen[sender] = true
		if !constants.Status(status).Active() || !eta.Valid {
			continue
		}
		at, err := parseStoreTime(eta.String)
		if err != nil {
			return nil, err
		}
		peers = append(peers, pipeline.PeerETA{
			Name:                sender,
			MinutesUntilArrival: int(math.Round(at.Sub(ref).Minutes())),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortPeers(peers)
	return peers, nil
}

// ListByMission returns the mission's records in arrival order.
func (r *interpretationRepository) ListByMission(ctx context.Context, missionID string) ([]*Record, error) {
	b := entsql.Dialect(r.db.dialect)
	t := b.Table(interpretationsTable)
	sel := b.Select(t.C("id"), t.C("message_id"), t.C("mission_id"), t.C("sender"),
		t.C("message_text"), t.C("received_at"), t.C("result_json")).
		From(t).
		Where(entsql.EQ(t.C("mission_id"), missionID)).
		OrderBy(t.C("received_at"), t.C("message_id"))
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to list interpretations", "mission_id", missionID, "error", err)
		return nil, fmt.Errorf("list interpretations: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec                Record
			id, received, blob string
			err                error
		)
		if err = rows.Scan(&id, &rec.MessageID, &rec.MissionID, &rec.Sender, &rec.Text, &received, &blob); err != nil {
			return nil, fmt.Errorf("scan interpretation: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse id %q: %w", id, err)
		}
		if rec.ReceivedAt, err = parseStoreTime(received); err != nil {
			return nil, err
		}
		if err = json.Unmarshal([]byte(blob), &rec.Result); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", id, err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func formatStoreTime(t time.Time) string {
	return t.UTC().Format(storeTimeLayout)
}

func parseStoreTime(s string) (time.Time, error) {
	t, err := time.Parse(storeTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// sortPeers orders by name so identical rosters give identical requests.
func sortPeers(peers []pipeline.PeerETA) {
	sort.Slice(peers, func(i, j int) bool { return peers[i].Name < peers[j].Name })
}
