package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeloop/notification-service/internal/domain"
	"github.com/tradeloop/notification-service/internal/repository"
)

func seed(t *testing.T, repo *repository.MemoryRepository, records ...domain.Notification) {
	t.Helper()
	for _, n := range records {
		_, err := repo.Insert(context.Background(), &n)
		require.NoError(t, err)
	}
}

func TestChatUnreadCount_DistinctChats(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	unread := domain.NewUnreadService(repo)

	seed(t, repo,
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c1"},
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c1"},
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c1"},
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c2"},
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c3", Read: true},
		domain.Notification{UserID: 8, Category: domain.CategoryChat, ChatID: "c9"},
	)

	// Distinct unread conversations, never the raw record count.
	count, err := unread.ChatUnreadCount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = unread.ChatUnreadCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestScalarAndGlobalUnreadCounts(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	unread := domain.NewUnreadService(repo)

	seed(t, repo,
		domain.Notification{UserID: 7, Category: domain.CategoryComment},
		domain.Notification{UserID: 7, Category: domain.CategoryComment, Read: true},
		domain.Notification{UserID: 8, Category: domain.CategoryComment},
		domain.Notification{UserID: 100, Category: domain.CategoryAdminRequest},
		domain.Notification{UserID: 101, Category: domain.CategoryAdminRequest},
	)

	count, err := unread.ScalarUnreadCount(ctx, 7, domain.CategoryComment)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Admin requests are counted across all users.
	count, err = unread.GlobalUnreadCount(ctx, domain.CategoryAdminRequest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUnreadChatDetails(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	unread := domain.NewUnreadService(repo)

	seed(t, repo,
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c1"},
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c2"},
		domain.Notification{UserID: 7, Category: domain.CategoryChat, ChatID: "c2", Read: true},
	)

	refs, err := unread.UnreadChatDetails(ctx, 7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ChatRef{
		{ChatID: "c1", Category: domain.CategoryChat},
		{ChatID: "c2", Category: domain.CategoryChat},
	}, refs)
}
