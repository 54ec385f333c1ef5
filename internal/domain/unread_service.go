package domain

import "context"

// UnreadService computes unread counts from store state. All methods are
// pure reads: deterministic for a given store state and safe to call
// concurrently.
type UnreadService struct {
	repo NotificationRepository
}

func NewUnreadService(repo NotificationRepository) *UnreadService {
	return &UnreadService{repo: repo}
}

// ChatUnreadCount counts distinct conversations with at least one unread chat
// record for the user. Many unread messages in one chat count as one.
func (s *UnreadService) ChatUnreadCount(ctx context.Context, userID int64) (int64, error) {
	chats, err := s.repo.DistinctUnreadChats(ctx, userID)
	if err != nil {
		return 0, err
	}
	return int64(len(chats)), nil
}

// ScalarUnreadCount counts unread records for (user, category).
func (s *UnreadService) ScalarUnreadCount(ctx context.Context, userID int64, category string) (int64, error) {
	return s.repo.Count(ctx, UserUnread(userID, category))
}

// GlobalUnreadCount counts unread records for a category across all users.
// Only admin_request is queried this way.
func (s *UnreadService) GlobalUnreadCount(ctx context.Context, category string) (int64, error) {
	return s.repo.Count(ctx, GlobalUnread(category))
}

// Snapshot returns the combined chat+comment unread state for a user.
func (s *UnreadService) Snapshot(ctx context.Context, userID int64) (*UnreadSnapshot, error) {
	chat, err := s.ChatUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	comments, err := s.ScalarUnreadCount(ctx, userID, CategoryComment)
	if err != nil {
		return nil, err
	}
	return &UnreadSnapshot{Chat: chat, Comments: comments}, nil
}

// UnreadChatDetails lists the user's unread chat records as (chat_id, type)
// pairs, one per unread record.
func (s *UnreadService) UnreadChatDetails(ctx context.Context, userID int64) ([]ChatRef, error) {
	records, err := s.repo.Find(ctx, UserUnread(userID, CategoryChat), false)
	if err != nil {
		return nil, err
	}
	refs := make([]ChatRef, 0, len(records))
	for _, n := range records {
		refs = append(refs, ChatRef{ChatID: n.ChatID, Category: n.Category})
	}
	return refs, nil
}
