package interpret

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/common"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
	"github.com/joseph-ayodele/responder-tracker/internal/repository"
)

const maxTextChars = 4000

// Message is one inbound chat message from a mission channel.
type Message struct {
	MessageID  string    `json:"message_id"`
	MissionID  string    `json:"mission_id"`
	Sender     string    `json:"sender"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Interpreter is the pipeline entry point.
type Interpreter interface {
	InterpretWithTrace(ctx context.Context, req pipeline.Request) (pipeline.Result, *pipeline.Trace)
}

// Roster is the optional live store the service writes through to.
type Roster interface {
	repository.RosterReader
	Track(ctx context.Context, missionID, sender string, res pipeline.Result, at time.Time) error
}

// CacheObserver counts replay-cache hits (metrics hook).
type CacheObserver interface {
	CacheHit()
}

// StoreObserver times persistence calls (metrics hook).
type StoreObserver interface {
	ObserveStore(operation string, start time.Time)
}

// Service turns messages into stored interpretations: context lookup,
// interpretation, roster update, persistence.
type Service struct {
	interpreter Interpreter
	repo        repository.InterpretationRepository
	roster      Roster
	cache       *lru.Cache[string, pipeline.Result]
	loc         *time.Location
	observer    CacheObserver
	store       StoreObserver
	logger      *slog.Logger
}

type Option func(*Service)

// WithRoster reads context from, and writes results to, a live roster
// instead of the SQL store.
func WithRoster(r Roster) Option {
	return func(s *Service) { s.roster = r }
}

// WithCacheSize enables the replay cache; 0 disables it.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n <= 0 {
			s.cache = nil
			return
		}
		c, err := lru.New[string, pipeline.Result](n)
		if err == nil {
			s.cache = c
		}
	}
}

func WithCacheObserver(o CacheObserver) Option {
	return func(s *Service) { s.observer = o }
}

func WithStoreObserver(o StoreObserver) Option {
	return func(s *Service) { s.store = o }
}

// NewService wires the service. loc is the deployment's timezone; every
// reference time is expressed in it.
func NewService(interp Interpreter, repo repository.InterpretationRepository, loc *time.Location, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{interpreter: interp, repo: repo, loc: loc, logger: logger}
	WithCacheSize(256)(s)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location is the deployment's timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Validate checks a message before it is queued or handled.
func (s *Service) Validate(msg Message) error {
	v := common.NewValidator().
		Field("message_id", msg.MessageID, common.Required, common.MaxLength(200)).
		Field("mission_id", msg.MissionID, common.Required, common.MaxLength(200)).
		Field("sender", msg.Sender, common.Required, common.MaxLength(200)).
		Field("text", msg.Text, common.Required, common.MaxLength(maxTextChars)).
		Field("received_at", msg.ReceivedAt, common.Required)
	return common.ValidateAndReturnError(v)
}

// Interpret is the stateless path: the caller supplies the whole request.
func (s *Service) Interpret(ctx context.Context, req pipeline.Request) (pipeline.Result, *pipeline.Trace, error) {
	if strings.TrimSpace(req.Text) == "" {
		return pipeline.Result{}, nil, common.InvalidInputErrorf("text is required")
	}
	if req.ReferenceTime.IsZero() {
		return pipeline.Result{}, nil, common.InvalidInputErrorf("reference_time is required")
	}
	req.ReferenceTime = req.ReferenceTime.In(s.loc)
	res, trace := s.interpreter.InterpretWithTrace(ctx, req)
	return res, trace, nil
}

// HandleMessage interprets msg against the mission's current roster and
// stores the result.
func (s *Service) HandleMessage(ctx context.Context, msg Message) (*repository.Record, error) {
	if err := s.Validate(msg); err != nil {
		return nil, err
	}
	ctx = common.WithMissionID(ctx, msg.MissionID)
	ref := msg.ReceivedAt.In(s.loc)

	var reader repository.RosterReader = s.repo
	if s.roster != nil {
		reader = s.roster
	}
	start := time.Now()
	prev, err := reader.LatestETA(ctx, msg.MissionID, msg.Sender, ref)
	if err != nil {
		return nil, common.WrapError(err, "load previous eta")
	}
	peers, err := reader.ActivePeers(ctx, msg.MissionID, msg.Sender, ref, ref)
	if err != nil {
		return nil, common.WrapError(err, "load peer etas")
	}
	s.observeStore("load_context", start)

	req := pipeline.Request{Text: msg.Text, ReferenceTime: ref, PreviousETA: prev, PeerETAs: peers}
	res, cached := s.interpretCached(ctx, req)

	rec := &repository.Record{
		MessageID:  msg.MessageID,
		MissionID:  msg.MissionID,
		Sender:     msg.Sender,
		Text:       msg.Text,
		ReceivedAt: msg.ReceivedAt.UTC(),
		Result:     res,
	}
	if s.roster != nil {
		if err := s.roster.Track(ctx, msg.MissionID, msg.Sender, res, msg.ReceivedAt); err != nil {
			// the SQL record stays authoritative
			s.logger.Warn("roster.track.failed", "mission_id", msg.MissionID, "sender", msg.Sender, "error", err)
		}
	}
	start = time.Now()
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, common.NewAppError("DATABASE_ERROR", "failed to store interpretation", err)
	}
	s.observeStore("save", start)

	s.logger.Info("message.handled",
		"message_id", msg.MessageID,
		"mission_id", msg.MissionID,
		"sender", msg.Sender,
		"status", res.Status,
		"eta_local", res.ETALocal,
		"has_previous_eta", prev != nil,
		"peers", len(peers),
		"cached", cached,
	)
	return rec, nil
}

// ListMission returns a mission's stored interpretations.
func (s *Service) ListMission(ctx context.Context, missionID string) ([]*repository.Record, error) {
	if strings.TrimSpace(missionID) == "" {
		return nil, common.InvalidInputErrorf("mission_id is required")
	}
	recs, err := s.repo.ListByMission(ctx, missionID)
	if err != nil {
		return nil, common.NewAppError("DATABASE_ERROR", "failed to list interpretations", err)
	}
	return recs, nil
}

// interpretCached answers identical requests from the cache. Results are a
// pure function of the request, so a hit is exactly what a rerun would give,
// minus the model calls. Results with an unavailable model are not cached.
func (s *Service) interpretCached(ctx context.Context, req pipeline.Request) (pipeline.Result, bool) {
	key := cacheKey(req)
	if s.cache != nil && key != "" {
		if res, ok := s.cache.Get(key); ok {
			if s.observer != nil {
				s.observer.CacheHit()
			}
			return res, true
		}
	}
	res, trace := s.interpreter.InterpretWithTrace(ctx, req)
	if s.cache != nil && key != "" && trace != nil && !trace.Primary.Unavailable() {
		s.cache.Add(key, res)
	}
	return res, false
}

func (s *Service) observeStore(op string, start time.Time) {
	if s.store != nil {
		s.store.ObserveStore(op, start)
	}
}

func cacheKey(req pipeline.Request) string {
	blob, err := json.Marshal(struct {
		Text string             `json:"t"`
		Ref  string             `json:"r"`
		Prev string             `json:"p,omitempty"`
		Peer []pipeline.PeerETA `json:"n,omitempty"`
	}{
		Text: req.Text,
		Ref:  req.ReferenceTime.UTC().Format(time.RFC3339Nano) + "|" + req.ReferenceTime.Location().String(),
		Prev: formatOptional(req.PreviousETA),
		Peer: req.PeerETAs,
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(constants.TimestampLayout)
}
