// Package search issues the search and answer requests of one query
// concurrently and assembles them into a conversation turn.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/correlate"
)

// Top-k bounds accepted by the backend.
const (
	MinTopK     = 1
	MaxTopK     = 50
	DefaultTopK = 10
)

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrNoSources  = errors.New("no sources selected")
)

// Backend is the subset of the backend client used for a turn.
type Backend interface {
	Search(ctx context.Context, req backend.SearchRequest) (*backend.SearchResponse, error)
	Answer(ctx context.Context, req backend.AnswerRequest) (*backend.AnswerResponse, error)
}

// Query is one user submission.
type Query struct {
	Text    string
	Sources []int64
	TopK    int
	Style   string
}

// Normalize trims the text, deduplicates sources, and clamps TopK.
func (q Query) Normalize() (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, ErrEmptyQuery
	}
	seen := make(map[int64]struct{}, len(q.Sources))
	var sources []int64
	for _, id := range q.Sources {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sources = append(sources, id)
	}
	if len(sources) == 0 {
		return q, ErrNoSources
	}
	q.Sources = sources
	if q.TopK == 0 {
		q.TopK = DefaultTopK
	}
	q.TopK = min(max(q.TopK, MinTopK), MaxTopK)
	return q, nil
}

// Leg names one of the two concurrent requests.
type Leg string

const (
	LegSearch Leg = "search"
	LegAnswer Leg = "answer"
)

// Turn is one query and whatever each leg produced. Either leg may have
// failed independently of the other.
type Turn struct {
	ID    string
	Query Query
	At    time.Time

	Hits       []backend.Hit
	TotalFound int
	SearchErr  error
	SearchDone bool

	Answer     *backend.Answer
	Citations  []backend.Citation
	Retrieval  backend.Retrieval
	AnswerErr  error
	AnswerDone bool

	// Index is built once both legs have resolved; nil until then.
	Index *correlate.Index
}

// Done reports whether both legs have resolved.
func (t *Turn) Done() bool { return t.SearchDone && t.AnswerDone }

// Runner executes turns against a backend.
type Runner struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time
}

// NewRunner creates a turn runner. logger may be nil.
func NewRunner(b Backend, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{backend: b, log: logger.Named("search"), now: time.Now}
}

// Run issues the search and answer requests concurrently. onPartial, when
// non-nil, receives a copy of the turn as each leg resolves, in completion
// order; it is called from the leg's goroutine. The returned turn has both
// legs resolved and its Index built. Run fails only on an invalid query.
func (r *Runner) Run(ctx context.Context, q Query, onPartial func(Leg, Turn)) (*Turn, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	turn := &Turn{ID: uuid.NewString(), Query: q, At: r.now()}
	var mu sync.Mutex
	publish := func(leg Leg) {
		if onPartial == nil {
			return
		}
		onPartial(leg, *turn)
	}

	// Legs report failure through the turn, never to the group.
	var g errgroup.Group
	g.Go(func() error {
		resp, err := r.backend.Search(ctx, backend.SearchRequest{Query: q.Text, Sources: q.Sources, TopK: q.TopK})
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			r.log.Warn("search leg failed", zap.Error(err))
			turn.SearchErr = err
		} else {
			turn.Hits = resp.Results
			turn.TotalFound = resp.TotalFound
		}
		turn.SearchDone = true
		publish(LegSearch)
		return nil
	})
	g.Go(func() error {
		resp, err := r.backend.Answer(ctx, backend.AnswerRequest{
			Query:   q.Text,
			Filters: backend.AnswerFilters{ChatIDs: q.Sources},
			TopK:    q.TopK,
			Style:   q.Style,
		})
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			r.log.Warn("answer leg failed", zap.Error(err))
			turn.AnswerErr = err
		} else {
			turn.Answer = resp.Answer
			turn.Citations = resp.Citations
			turn.Retrieval = resp.Retrieval
		}
		turn.AnswerDone = true
		publish(LegAnswer)
		return nil
	})
	_ = g.Wait()

	turn.Index = correlate.Build(turn.Hits, turn.Citations)
	r.log.Debug("turn complete",
		zap.String("turn_id", turn.ID),
		zap.Int("hits", len(turn.Hits)),
		zap.Int("citations", turn.Index.Len()),
		zap.Bool("search_failed", turn.SearchErr != nil),
		zap.Bool("answer_failed", turn.AnswerErr != nil),
	)
	return turn, nil
}

// Conversation is the ordered list of turns shown in the search view.
type Conversation struct {
	mu    sync.RWMutex
	turns []*Turn
}

// Append adds a turn at the end.
func (c *Conversation) Append(t *Turn) {
	c.mu.Lock()
	c.turns = append(c.turns, t)
	c.mu.Unlock()
}

// Clear drops every turn.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
}

// Turns returns the turns in order.
func (c *Conversation) Turns() []*Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.turns)
}

// Last returns the newest turn, or nil.
func (c *Conversation) Last() *Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.turns) == 0 {
		return nil
	}
	return c.turns[len(c.turns)-1]
}

// Len is the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// HitJSON renders a hit the way it is copied to the clipboard.
func HitJSON(h backend.Hit) ([]byte, error) {
	return json.MarshalIndent(struct {
		MessageID      int64  `json:"message_id"`
		ChatID         int64  `json:"chat_id"`
		AuthorID       int64  `json:"author_id"`
		AuthorUsername string `json:"author_username"`
		Text           string `json:"text"`
		Date           string `json:"date"`
	}{
		MessageID:      h.Message.ID,
		ChatID:         h.Message.ChatID,
		AuthorID:       h.Message.Author.ID,
		AuthorUsername: h.Message.Author.Username,
		Text:           h.Message.Text,
		Date:           h.Message.Date,
	}, "", "  ")
}
