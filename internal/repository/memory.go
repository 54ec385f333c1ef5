package repository

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tradeloop/notification-service/internal/domain"
)

// MemoryRepository is an in-memory store used by tests. It honors the same
// filter and atomic-claim semantics as the Mongo implementation.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []*domain.Notification
	tokens  map[int64][]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[int64][]string)}
}

func matches(f domain.Filter, n *domain.Notification) bool {
	if f.ID != nil && *f.ID != n.ID {
		return false
	}
	if f.UserID != nil && *f.UserID != n.UserID {
		return false
	}
	if f.Category != "" && f.Category != n.Category {
		return false
	}
	if f.ChatID != nil && *f.ChatID != n.ChatID {
		return false
	}
	if f.Read != nil && *f.Read != n.Read {
		return false
	}
	return true
}

func (r *MemoryRepository) Insert(_ context.Context, n *domain.Notification) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *n
	stored.ID = primitive.NewObjectID()
	r.records = append(r.records, &stored)
	return stored.ID, nil
}

func (r *MemoryRepository) Find(_ context.Context, f domain.Filter, newestFirst bool) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Notification
	for _, n := range r.records {
		if matches(f, n) {
			out = append(out, *n)
		}
	}
	if newestFirst {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out, nil
}

func (r *MemoryRepository) Count(_ context.Context, f domain.Filter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, n := range r.records {
		if matches(f, n) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkManyRead(_ context.Context, f domain.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var modified int64
	for _, n := range r.records {
		if matches(f, n) && !n.Read {
			n.Read = true
			modified++
		}
	}
	return modified, nil
}

func (r *MemoryRepository) ClaimRead(_ context.Context, id primitive.ObjectID, userID int64) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.records {
		if n.ID == id && n.UserID == userID && !n.Read {
			n.Read = true
			claimed := *n
			return &claimed, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryRepository) DistinctUnreadChats(_ context.Context, userID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var chats []string
	for _, n := range r.records {
		if n.UserID == userID && n.Category == domain.CategoryChat && !n.Read && !seen[n.ChatID] {
			seen[n.ChatID] = true
			chats = append(chats, n.ChatID)
		}
	}
	return chats, nil
}

func (r *MemoryRepository) SaveDeviceToken(_ context.Context, userID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens[userID] {
		if t == token {
			return nil
		}
	}
	r.tokens[userID] = append(r.tokens[userID], token)
	return nil
}

func (r *MemoryRepository) DeviceTokens(_ context.Context, userID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.tokens[userID]...), nil
}
