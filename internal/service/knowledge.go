package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/knowledge"
	"github.com/aiarch/aia/internal/port/cache"
	"github.com/aiarch/aia/internal/port/database"
)

// queryCacheTTL bounds how long a cached query result may be served.
const queryCacheTTL = 10 * time.Minute

// KnowledgeService owns the in-memory knowledge graph. Writes go to the
// store first and reach the graph only after they commit.
type KnowledgeService struct {
	store database.Store
	cache cache.Cache

	mu    sync.RWMutex
	graph *knowledge.Graph
	gen   uint64 // bumped on every graph write; part of every cache key
}

// NewKnowledgeService creates a KnowledgeService with an empty graph. Call
// Load to rebuild it from the store. c may be nil.
func NewKnowledgeService(store database.Store, c cache.Cache) *KnowledgeService {
	// Generations start from the clock so a restarted process never reads
	// entries a previous one left in a shared L2.
	return &KnowledgeService{store: store, cache: c, graph: knowledge.NewGraph(), gen: uint64(time.Now().UnixNano())}
}

// Load rebuilds the graph from the stored nodes. Nodes are inserted first
// and edges after, so stored edges between any two nodes are accepted.
func (s *KnowledgeService) Load(ctx context.Context) error {
	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("load knowledge nodes: %w", err)
	}
	g := knowledge.NewGraph()
	for _, n := range nodes {
		bare := n
		bare.Edges = nil
		if err := g.Add(bare); err != nil {
			return fmt.Errorf("load node %s: %w", n.ID, err)
		}
	}
	for _, n := range nodes {
		for _, e := range n.Edges {
			if err := g.AddEdge(n.ID, e); err != nil {
				return fmt.Errorf("load edge %s -> %s: %w", n.ID, e.To, err)
			}
		}
	}

	s.mu.Lock()
	s.graph = g
	s.gen++
	s.mu.Unlock()
	slog.InfoContext(ctx, "knowledge graph loaded", "nodes", len(nodes))
	return nil
}

// RegisterNode adds a node with its outgoing edges.
func (s *KnowledgeService) RegisterNode(ctx context.Context, n knowledge.Node) (*knowledge.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.graph.Check(n); err != nil {
		return nil, err
	}
	if err := s.store.CreateNode(ctx, &n); err != nil {
		return nil, fmt.Errorf("register node %s: %w", n.ID, err)
	}
	if err := s.graph.Add(n); err != nil {
		return nil, err
	}
	s.gen++
	stored, _ := s.graph.Node(n.ID)
	slog.InfoContext(ctx, "knowledge node registered", "node_id", n.ID, "kind", n.Kind, "edges", len(n.Edges))
	return &stored, nil
}

// AddEdge links two existing nodes. Adding an edge that already exists is a
// no-op.
func (s *KnowledgeService) AddEdge(ctx context.Context, from string, e knowledge.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.graph.CheckEdge(from, e)
	if err != nil || exists {
		return err
	}
	if err := s.store.AddEdge(ctx, from, e); err != nil {
		return fmt.Errorf("add edge %s -> %s: %w", from, e.To, err)
	}
	if err := s.graph.AddEdge(from, e); err != nil {
		return err
	}
	s.gen++
	return nil
}

// LearningPath returns the prerequisites of target not yet known, in the
// order they must be learned.
func (s *KnowledgeService) LearningPath(ctx context.Context, target string, known []string) ([]knowledge.Node, error) {
	res, err := s.Query(ctx, knowledge.Query{Op: knowledge.OpLearningPath, ID: target, Known: known})
	if err != nil {
		return nil, err
	}
	return res.Path, nil
}

// RecommendNext scores the direct successors of known nodes against
// goalTags.
func (s *KnowledgeService) RecommendNext(ctx context.Context, known []string, goalTags map[string]float64) ([]knowledge.Recommendation, error) {
	res, err := s.Query(ctx, knowledge.Query{Op: knowledge.OpRecommendNext, Known: known, GoalTags: goalTags})
	if err != nil {
		return nil, err
	}
	return res.Recommendations, nil
}

// Neighbors returns the outgoing edges of a node.
func (s *KnowledgeService) Neighbors(ctx context.Context, id string) ([]knowledge.Edge, error) {
	res, err := s.Query(ctx, knowledge.Query{Op: knowledge.OpNeighbors, ID: id})
	if err != nil {
		return nil, err
	}
	return res.Edges, nil
}

// Node returns a node by ID.
func (s *KnowledgeService) Node(_ context.Context, id string) (*knowledge.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.graph.Node(id)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
	}
	return &n, nil
}

// Query runs one read against the graph. Results are cached under the
// current graph generation, so any write makes older entries unreachable.
func (s *KnowledgeService) Query(ctx context.Context, q knowledge.Query) (*knowledge.QueryResult, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	key := s.cacheKey(q)
	if res, ok := s.cached(ctx, key); ok {
		res.Cached = true
		res.ExecutionTimeMS = elapsedMS(start)
		return res, nil
	}

	res := &knowledge.QueryResult{Op: q.Op}
	switch q.Op {
	case knowledge.OpLearningPath:
		path, err := s.graph.LearningPath(q.ID, q.KnownSet())
		if err != nil {
			return nil, err
		}
		res.Path = path
	case knowledge.OpRecommendNext:
		limit := q.Limit
		if limit == 0 {
			limit = knowledge.DefaultRecommendLimit
		}
		res.Recommendations = s.graph.RecommendNext(q.KnownSet(), q.GoalTags, limit)
	case knowledge.OpNeighbors:
		edges, err := s.graph.Neighbors(q.ID)
		if err != nil {
			return nil, err
		}
		res.Edges = edges
	case knowledge.OpNode:
		n, ok := s.graph.Node(q.ID)
		if !ok {
			return nil, fmt.Errorf("node %s: %w", q.ID, domain.ErrNotFound)
		}
		res.Node = &n
	}

	s.remember(ctx, key, res)
	res.ExecutionTimeMS = elapsedMS(start)
	return res, nil
}

func (s *KnowledgeService) cacheKey(q knowledge.Query) string {
	data, _ := json.Marshal(q)
	return "dkg:" + strconv.FormatUint(s.gen, 10) + ":" + string(data)
}

func (s *KnowledgeService) cached(ctx context.Context, key string) (*knowledge.QueryResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "knowledge cache get", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res knowledge.QueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (s *KnowledgeService) remember(ctx context.Context, key string, res *knowledge.QueryResult) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, queryCacheTTL); err != nil {
		slog.WarnContext(ctx, "knowledge cache set", "error", err)
	}
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
