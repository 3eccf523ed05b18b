package storage

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"mcp-semantic-memory/internal/config"
	"mcp-semantic-memory/internal/errors"
	"mcp-semantic-memory/internal/logging"
	"mcp-semantic-memory/internal/storage/pool"
	"mcp-semantic-memory/pkg/types"
)

// maxScrollLimit caps a full-collection scan.
const maxScrollLimit = 10000

var _ VectorStore = (*QdrantStore)(nil)

// QdrantStore implements VectorStore against a Qdrant collection. Client
// handles come from a fixed-size pool; every call runs under the configured
// operation timeout.
type QdrantStore struct {
	collection string
	dimension  int
	timeout    time.Duration
	pool       *pool.Pool
	logger     logging.Logger
	skipped    atomic.Int64
}

type qdrantConn struct {
	client *qdrant.Client
}

func (c *qdrantConn) IsAlive(ctx context.Context) bool {
	_, err := c.client.HealthCheck(ctx)
	return err == nil
}

func (c *qdrantConn) Close() error {
	return c.client.Close()
}

// NewQdrantStore connects the pool to the configured Qdrant instance.
// dimension is the embedding dimension used when the collection is created.
func NewQdrantStore(ctx context.Context, cfg *config.QdrantConfig, timeoutSeconds, dimension int) (*QdrantStore, error) {
	factory := func(ctx context.Context) (pool.Conn, error) {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		})
		if err != nil {
			return nil, errors.NewConnection(cfg.URL(), err)
		}
		return &qdrantConn{client: client}, nil
	}

	poolCfg := pool.DefaultConfig()
	if cfg.PoolSize > 0 {
		poolCfg.Size = cfg.PoolSize
	}
	p, err := pool.New(ctx, factory, poolCfg)
	if err != nil {
		return nil, errors.NewConnection(cfg.URL(), err)
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &QdrantStore{
		collection: cfg.Collection,
		dimension:  dimension,
		timeout:    timeout,
		pool:       p,
		logger:     logging.WithComponent("qdrant"),
	}, nil
}

// withClient checks out a pooled client and runs fn under the call timeout.
func (s *QdrantStore) withClient(ctx context.Context, fn func(ctx context.Context, client *qdrant.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		if stderrors.Is(err, pool.ErrAcquireTimeout) || stderrors.Is(err, pool.ErrPoolClosed) {
			return errors.NewStorageUnavailable("no storage connection available", err)
		}
		return errors.FromContextErr("acquire storage connection", err)
	}
	defer s.pool.Release(conn)

	return fn(ctx, conn.(*qdrantConn).client)
}

// backendErr maps a raw client failure into the error taxonomy. Deadline and
// cancellation win over the generic storage classification.
func (s *QdrantStore) backendErr(ctx context.Context, operation string, err error) error {
	var me *errors.MemoryError
	if stderrors.As(err, &me) {
		return me
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.FromContextErr(operation, ctxErr)
	}
	return errors.NewStorageUnavailable(operation+" failed", err)
}

// Initialize creates the collection when missing.
func (s *QdrantStore) Initialize(ctx context.Context) error {
	return s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		collections, err := client.ListCollections(ctx)
		if err != nil {
			return s.backendErr(ctx, "list collections", err)
		}
		for _, name := range collections {
			if name == s.collection {
				return nil
			}
		}
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return s.backendErr(ctx, "create collection", err)
		}
		s.logger.InfoContext(ctx, "created collection", "collection", s.collection, "dimension", s.dimension)
		return nil
	})
}

func (s *QdrantStore) unitToPoint(unit *types.MemoryUnit, vector []float64) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: stringToPointID(unit.ID),
		Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{
			Vector: &qdrant.Vector{Data: float64ToFloat32(vector)},
		}},
		Payload: unitToPayload(unit),
	}
}

// Store upserts one unit with its vector.
func (s *QdrantStore) Store(ctx context.Context, unit *types.MemoryUnit, vector []float64) error {
	if err := unit.Validate(); err != nil {
		return errors.NewValidation(err.Error())
	}
	if len(vector) != s.dimension {
		return errors.NewValidationField("vector", "embedding dimension mismatch")
	}
	return s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		_, err := client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{s.unitToPoint(unit, vector)},
		})
		if err != nil {
			return s.backendErr(ctx, "store memory", err)
		}
		return nil
	})
}

// BatchStore upserts many units in one call. Invalid units are reported in
// the result and do not abort the rest of the batch.
func (s *QdrantStore) BatchStore(ctx context.Context, units []*types.MemoryUnit, vectors [][]float64) (*BatchResult, error) {
	if len(units) != len(vectors) {
		return nil, errors.NewValidation("units and vectors length mismatch")
	}
	result := &BatchResult{}
	points := make([]*qdrant.PointStruct, 0, len(units))
	ids := make([]string, 0, len(units))
	for i, unit := range units {
		if err := unit.Validate(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, unit.ID+": "+err.Error())
			continue
		}
		if len(vectors[i]) != s.dimension {
			result.Failed++
			result.Errors = append(result.Errors, unit.ID+": embedding dimension mismatch")
			continue
		}
		points = append(points, s.unitToPoint(unit, vectors[i]))
		ids = append(ids, unit.ID)
	}
	if len(points) == 0 {
		return result, nil
	}

	err := s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		_, err := client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return s.backendErr(ctx, "batch store", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Success = len(points)
	result.ProcessedIDs = ids
	return result, nil
}

// Search runs a filtered ANN query. Scores come back cosine, descending.
func (s *QdrantStore) Search(ctx context.Context, vector []float64, filters *types.SearchFilters, limit int) ([]types.ScoredMemory, error) {
	if limit < 1 {
		return nil, errors.NewValidationField("limit", "must be positive")
	}
	filter, err := buildFilter(filters)
	if err != nil {
		return nil, err
	}

	var results []types.ScoredMemory
	err = s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		points, err := client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(float64ToFloat32(vector)...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			Filter:         filter,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return s.backendErr(ctx, "search", err)
		}
		results = make([]types.ScoredMemory, 0, len(points))
		for _, point := range points {
			unit, decodeErr := payloadToUnit(pointIDToString(point.GetId()), point.GetPayload())
			if decodeErr != nil {
				s.skipped.Add(1)
				s.logger.WarnContext(ctx, "skipping invalid point", "error", decodeErr.Error())
				continue
			}
			results = append(results, types.ScoredMemory{
				Memory: unit,
				Score:  clampScore(float64(point.GetScore())),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetByID returns one unit, or NOT_FOUND.
func (s *QdrantStore) GetByID(ctx context.Context, id string) (*types.MemoryUnit, error) {
	unit, _, err := s.get(ctx, id, false)
	return unit, err
}

// GetWithVector returns one unit with its stored embedding.
func (s *QdrantStore) GetWithVector(ctx context.Context, id string) (*types.MemoryUnit, []float64, error) {
	return s.get(ctx, id, true)
}

func (s *QdrantStore) get(ctx context.Context, id string, withVector bool) (*types.MemoryUnit, []float64, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil, errors.NewValidationField("id", "cannot be empty")
	}
	var unit *types.MemoryUnit
	var vector []float64
	err := s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		points, err := client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.collection,
			Ids:            []*qdrant.PointId{stringToPointID(id)},
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: withVector}},
		})
		if err != nil {
			return s.backendErr(ctx, "get memory", err)
		}
		if len(points) == 0 {
			return errors.NewNotFound(id)
		}
		point := points[0]
		unit, err = payloadToUnit(pointIDToString(point.GetId()), point.GetPayload())
		if err != nil {
			s.skipped.Add(1)
			return errors.NewRetrieval("stored memory is corrupt", err)
		}
		if withVector {
			if vectors := point.GetVectors(); vectors != nil {
				if v := vectors.GetVector(); v != nil {
					vector = float32ToFloat64(v.GetData())
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return unit, vector, nil
}

// Update replaces the stored unit. The point upsert is atomic on the Qdrant
// side, so readers never observe a partial write.
func (s *QdrantStore) Update(ctx context.Context, unit *types.MemoryUnit, vector []float64) error {
	if _, err := s.GetByID(ctx, unit.ID); err != nil {
		return err
	}
	return s.Store(ctx, unit, vector)
}

// Delete removes one unit, or fails with NOT_FOUND.
func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		_, err := client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{stringToPointID(id)}},
				},
			},
		})
		if err != nil {
			return s.backendErr(ctx, "delete memory", err)
		}
		return nil
	})
}

// DeleteByFilter scrolls matching candidates up to the cap, builds the
// breakdown, and deletes by id unless dryRun is set.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filters *types.SearchFilters, maxCount int, dryRun bool) (*DeleteByFilterResult, error) {
	if maxCount < 1 || maxCount > MaxDeleteByFilter {
		maxCount = MaxDeleteByFilter
	}
	candidates, err := s.scrollUnits(ctx, filters, maxCount)
	if err != nil {
		return nil, err
	}

	result := &DeleteByFilterResult{
		DryRun:    dryRun,
		Breakdown: types.NewDeleteBreakdown(),
	}
	ids := make([]*qdrant.PointId, 0, len(candidates))
	for _, unit := range candidates {
		result.Breakdown.Add(unit)
		if unit.Importance >= 0.8 {
			result.HighImportanceCount++
		}
		ids = append(ids, stringToPointID(unit.ID))
	}
	result.DeletedCount = len(ids)

	if dryRun || len(ids) == 0 {
		return result, nil
	}

	err = s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		_, err := client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: ids},
				},
			},
		})
		if err != nil {
			return s.backendErr(ctx, "bulk delete", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scrollUnits collects up to max matching units (0 means the full-scan
// ceiling). Collections are expected to stay well under the scan limit.
func (s *QdrantStore) scrollUnits(ctx context.Context, filters *types.SearchFilters, max int) ([]*types.MemoryUnit, error) {
	filter, err := buildFilter(filters)
	if err != nil {
		return nil, err
	}
	limit := uint32(maxScrollLimit)
	if max > 0 && max < maxScrollLimit {
		limit = uint32(max)
	}

	var units []*types.MemoryUnit
	err = s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		points, err := client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return s.backendErr(ctx, "scroll", err)
		}
		units = make([]*types.MemoryUnit, 0, len(points))
		for _, point := range points {
			unit, decodeErr := payloadToUnit(pointIDToString(point.GetId()), point.GetPayload())
			if decodeErr != nil {
				s.skipped.Add(1)
				s.logger.WarnContext(ctx, "skipping invalid point", "error", decodeErr.Error())
				continue
			}
			units = append(units, unit)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// List returns a sorted page of matching units plus the total match count.
// Sorting happens in memory because Qdrant scroll order is id-based.
func (s *QdrantStore) List(ctx context.Context, filters *types.SearchFilters, sortBy string, sortOrder types.SortOrder, limit, offset int) ([]*types.MemoryUnit, int, error) {
	if limit < 1 {
		limit = types.DefaultListLimit
	}
	if limit > types.MaxListLimit {
		return nil, 0, errors.NewValidationField("limit", "exceeds maximum page size")
	}
	if offset < 0 {
		return nil, 0, errors.NewValidationField("offset", "cannot be negative")
	}
	units, err := s.scrollUnits(ctx, filters, 0)
	if err != nil {
		return nil, 0, err
	}
	if err := SortUnits(units, sortBy, sortOrder); err != nil {
		return nil, 0, err
	}
	total := len(units)
	if offset >= total {
		return []*types.MemoryUnit{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return units[offset:end], total, nil
}

// SortUnits orders units in place by the given column and direction, with a
// stable created_at-then-id tie-break.
func SortUnits(units []*types.MemoryUnit, sortBy string, sortOrder types.SortOrder) error {
	if sortBy == "" {
		sortBy = SortByCreatedAt
	}
	if sortOrder == "" {
		sortOrder = types.SortDesc
	}
	if !sortOrder.Valid() {
		return errors.NewValidationField("sort_order", "must be asc or desc")
	}
	var key func(u *types.MemoryUnit) float64
	switch sortBy {
	case SortByCreatedAt:
		key = func(u *types.MemoryUnit) float64 { return float64(u.CreatedAt.UnixNano()) }
	case SortByUpdatedAt:
		key = func(u *types.MemoryUnit) float64 { return float64(u.UpdatedAt.UnixNano()) }
	case SortByImportance:
		key = func(u *types.MemoryUnit) float64 { return u.Importance }
	default:
		return errors.NewValidationField("sort_by", "unsupported sort column: "+sortBy)
	}
	sort.SliceStable(units, func(i, j int) bool {
		ki, kj := key(units[i]), key(units[j])
		if ki != kj {
			if sortOrder == types.SortAsc {
				return ki < kj
			}
			return ki > kj
		}
		if !units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].CreatedAt.After(units[j].CreatedAt)
		}
		return units[i].ID < units[j].ID
	})
	return nil
}

// Count returns the number of matching units.
func (s *QdrantStore) Count(ctx context.Context, filters *types.SearchFilters) (int, error) {
	filter, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		n, err := client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return s.backendErr(ctx, "count", err)
		}
		count = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetAllProjects returns the distinct project names present in the store.
func (s *QdrantStore) GetAllProjects(ctx context.Context) ([]string, error) {
	units, err := s.scrollUnits(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var projects []string
	for _, unit := range units {
		if unit.ProjectName == "" || seen[unit.ProjectName] {
			continue
		}
		seen[unit.ProjectName] = true
		projects = append(projects, unit.ProjectName)
	}
	sort.Strings(projects)
	return projects, nil
}

// GetProjectStats aggregates one project's units.
func (s *QdrantStore) GetProjectStats(ctx context.Context, project string) (*ProjectStats, error) {
	if strings.TrimSpace(project) == "" {
		return nil, errors.NewValidationField("project", "cannot be empty")
	}
	units, err := s.scrollUnits(ctx, &types.SearchFilters{ProjectName: project}, 0)
	if err != nil {
		return nil, err
	}
	return AggregateProjectStats(project, units), nil
}

// AggregateProjectStats summarizes a project's units. Shared by both store
// implementations.
func AggregateProjectStats(project string, units []*types.MemoryUnit) *ProjectStats {
	stats := &ProjectStats{
		Project:     project,
		MemoryCount: len(units),
		ByCategory:  make(map[string]int),
		ByLifecycle: make(map[string]int),
	}
	var importanceSum float64
	for _, unit := range units {
		stats.ByCategory[string(unit.Category)]++
		stats.ByLifecycle[string(unit.LifecycleState)]++
		importanceSum += unit.Importance
		created := unit.CreatedAt
		if stats.OldestMemory == nil || created.Before(*stats.OldestMemory) {
			t := created
			stats.OldestMemory = &t
		}
		if stats.NewestMemory == nil || created.After(*stats.NewestMemory) {
			t := created
			stats.NewestMemory = &t
		}
		accessed := unit.LastAccessed
		if stats.LastAccessedAt == nil || accessed.After(*stats.LastAccessedAt) {
			t := accessed
			stats.LastAccessedAt = &t
		}
	}
	if len(units) > 0 {
		stats.AvgImportance = importanceSum / float64(len(units))
	}
	return stats
}

// HealthCheck probes the collection.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	return s.withClient(ctx, func(ctx context.Context, client *qdrant.Client) error {
		if _, err := client.GetCollectionInfo(ctx, s.collection); err != nil {
			return s.backendErr(ctx, "health check", err)
		}
		return nil
	})
}

// Stats aggregates store-wide counters with a full scan.
func (s *QdrantStore) Stats(ctx context.Context) (*StoreStats, error) {
	units, err := s.scrollUnits(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	stats := AggregateStoreStats(units)
	stats.SkippedInvalid = s.skipped.Load()
	return stats, nil
}

// AggregateStoreStats tallies store-wide counters for a set of units.
func AggregateStoreStats(units []*types.MemoryUnit) *StoreStats {
	stats := &StoreStats{
		TotalMemories: len(units),
		ByCategory:    make(map[string]int),
		ByProject:     make(map[string]int),
		ByLifecycle:   make(map[string]int),
	}
	for _, unit := range units {
		stats.ByCategory[string(unit.Category)]++
		project := unit.ProjectName
		if project == "" {
			project = string(types.ScopeGlobal)
		}
		stats.ByProject[project]++
		stats.ByLifecycle[string(unit.LifecycleState)]++
	}
	return stats
}

// PoolStats exposes the connection pool counters.
func (s *QdrantStore) PoolStats() pool.Stats {
	return s.pool.Stats()
}

// Close releases the connection pool.
func (s *QdrantStore) Close() error {
	return s.pool.Close()
}

func stringToPointID(s string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: s}}
}

func pointIDToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	return id.GetUuid()
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
