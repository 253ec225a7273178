package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"groupdraw-server-go/models"
)

const (
	drawSeqKey      = "draws:seq"      // String: last issued draw id (INCR)
	drawsKey        = "draws"          // List: draw ids in save order
	drawInfoPrefix  = "draw:"          // String prefix: draw:{id} -> draw JSON
	rosterOrderKey  = "roster:order"   // List: student names in roster order
	rosterCohortKey = "roster:cohorts" // Hash: student name -> cohort
)

// RedisService stores draws and the active roster in Redis
type RedisService struct {
	Client *redis.Client
	Ctx    context.Context // Base context
	Now    func() time.Time
}

var _ DrawStore = (*RedisService)(nil)

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{
		Client: client,
		Ctx:    context.Background(),
		Now:    time.Now,
	}
}

// Helper to generate draw info key
func getDrawInfoKey(id int) string {
	return drawInfoPrefix + strconv.Itoa(id)
}

// --- Draw Operations ---

// Save stores a new draw under the next id of the draws:seq counter
func (s *RedisService) Save(automatic []models.Group, name string, manual []models.Group) (int, error) {
	next, err := s.Client.Incr(s.Ctx, drawSeqKey).Result()
	if err != nil {
		logrus.WithError(err).Error("Error allocating draw id")
		return 0, fmt.Errorf("failed to allocate draw id: %w", err)
	}
	id := int(next)

	draw := models.Draw{
		ID:        id,
		Name:      name,
		Timestamp: s.Now().Format(models.TimestampLayout),
		Automatic: normalizeGroups(automatic),
		Manual:    normalizeGroups(manual),
	}
	payload, err := json.Marshal(draw)
	if err != nil {
		return 0, fmt.Errorf("failed to encode draw: %w", err)
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(s.Ctx, getDrawInfoKey(id), payload, 0)
	pipe.RPush(s.Ctx, drawsKey, id)
	if _, err := pipe.Exec(s.Ctx); err != nil {
		logrus.WithError(err).WithField("id", id).Error("Error saving draw")
		return 0, fmt.Errorf("failed to save draw to Redis: %w", err)
	}

	logrus.WithFields(logrus.Fields{"id": id, "name": name}).Info("Saved draw")
	return id, nil
}

// LoadAll returns every stored draw in save order
func (s *RedisService) LoadAll() ([]models.Draw, error) {
	ids, err := s.Client.LRange(s.Ctx, drawsKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logrus.WithError(err).Error("Error listing draw ids")
		return nil, fmt.Errorf("failed to list draws from Redis: %w", err)
	}
	if len(ids) == 0 {
		return []models.Draw{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = drawInfoPrefix + id
	}
	values, err := s.Client.MGet(s.Ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get draws from Redis: %w", err)
	}

	draws := make([]models.Draw, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// listed but missing; skip it like a deleted draw
			logrus.WithField("key", keys[i]).Warn("Draw listed but not found")
			continue
		}
		var draw models.Draw
		if err := json.Unmarshal([]byte(raw), &draw); err != nil {
			logrus.WithError(err).WithField("key", keys[i]).Error("Error decoding draw")
			continue
		}
		draw.Automatic = normalizeGroups(draw.Automatic)
		draw.Manual = normalizeGroups(draw.Manual)
		draws = append(draws, draw)
	}
	return draws, nil
}

// Delete removes a draw; deleting an unknown id succeeds
func (s *RedisService) Delete(id int) (bool, error) {
	pipe := s.Client.TxPipeline()
	pipe.LRem(s.Ctx, drawsKey, 0, strconv.Itoa(id))
	pipe.Del(s.Ctx, getDrawInfoKey(id))
	if _, err := pipe.Exec(s.Ctx); err != nil {
		logrus.WithError(err).WithField("id", id).Error("Error deleting draw")
		return false, fmt.Errorf("failed to delete draw from Redis: %w", err)
	}
	logrus.WithField("id", id).Info("Deleted draw")
	return true, nil
}

// Search scans every stored draw for fragment
func (s *RedisService) Search(fragment string) ([]models.Match, error) {
	draws, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	return SearchDraws(draws, fragment), nil
}

// --- Roster Operations ---

// SaveRoster replaces the cached roster
func (s *RedisService) SaveRoster(students []models.Student) error {
	_, err := s.Client.TxPipelined(s.Ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(s.Ctx, rosterOrderKey, rosterCohortKey)
		if len(students) == 0 {
			return nil
		}
		names := make([]interface{}, len(students))
		cohorts := make(map[string]interface{}, len(students))
		for i, st := range students {
			names[i] = st.Name
			cohorts[st.Name] = int(st.Cohort)
		}
		pipe.RPush(s.Ctx, rosterOrderKey, names...)
		pipe.HSet(s.Ctx, rosterCohortKey, cohorts)
		return nil
	})
	if err != nil {
		logrus.WithError(err).Error("Error caching roster")
		return fmt.Errorf("failed to save roster to Redis: %w", err)
	}
	logrus.WithField("students", len(students)).Info("Cached roster in Redis")
	return nil
}

// LoadRoster returns the cached roster, or nil when none was saved
func (s *RedisService) LoadRoster() ([]models.Student, error) {
	names, err := s.Client.LRange(s.Ctx, rosterOrderKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get roster from Redis: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	cohorts, err := s.Client.HGetAll(s.Ctx, rosterCohortKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get roster cohorts from Redis: %w", err)
	}

	students := make([]models.Student, 0, len(names))
	for _, name := range names {
		n, err := strconv.Atoi(cohorts[name])
		if err != nil {
			logrus.WithField("student", name).Warn("Skipping cached student without cohort")
			continue
		}
		students = append(students, models.Student{Name: name, Cohort: models.Cohort(n)})
	}
	return students, nil
}

// Ping checks the Redis connection
func (s *RedisService) Ping() error {
	return s.Client.Ping(s.Ctx).Err()
}

// --- Utility ---

// InitializeRedisClient creates and tests a Redis client connection
func InitializeRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", addr, err)
	}

	logrus.WithFields(logrus.Fields{"addr": addr, "db": db}).Info("Successfully connected to Redis")
	return rdb, nil
}
