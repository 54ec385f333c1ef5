package domain

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/fcm"
)

// InboundEvent is the JSON payload consumed from the category queues. Extra
// fields are ignored; missing fields keep their zero values (payload schemas
// are not validated, a documented gap).
type InboundEvent struct {
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	RelatedID string    `json:"related_id"`
	ChatID    string    `json:"chat_id"`
	BuyerID   int64     `json:"buyer_id"`
	SellerID  int64     `json:"seller_id"`
	ListingID int64     `json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationService owns the fanout pipeline: it is the only writer of the
// store, and every write ends in the same recompute-and-push routines so
// pushed counts always reflect post-write state.
type NotificationService struct {
	repo      NotificationRepository
	tokens    DeviceTokenRepository
	unread    *UnreadService
	bcast     Broadcaster
	fcmClient *fcm.Client
	logger    *zap.Logger
}

func NewNotificationService(
	repo NotificationRepository,
	tokens DeviceTokenRepository,
	unread *UnreadService,
	bcast Broadcaster,
	fcmClient *fcm.Client,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		repo:      repo,
		tokens:    tokens,
		unread:    unread,
		bcast:     bcast,
		fcmClient: fcmClient,
		logger:    logger,
	}
}

func (s *NotificationService) createdAt(ev InboundEvent) time.Time {
	if ev.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return ev.CreatedAt
}

// IngestComment persists a comment notification and pushes the record plus a
// fresh chat+comment snapshot to the recipient's room.
func (s *NotificationService) IngestComment(ctx context.Context, ev InboundEvent) error {
	n := Notification{
		UserID:    ev.UserID,
		Category:  CategoryComment,
		Message:   ev.Message,
		RelatedID: ev.RelatedID,
		ChatID:    ev.ChatID,
		CreatedAt: s.createdAt(ev),
	}
	id, err := s.repo.Insert(ctx, &n)
	if err != nil {
		return fmt.Errorf("insert comment notification: %w", err)
	}
	n.ID = id

	s.bcast.ToUser(n.UserID, n.Category, n)
	s.mirrorToDevices(ctx, n)
	return s.PushUnreadSnapshot(ctx, n.UserID)
}

// IngestChat persists a chat notification and pushes the record to both the
// conversation room and the recipient's room, then the recomputed snapshot.
func (s *NotificationService) IngestChat(ctx context.Context, ev InboundEvent) error {
	n := Notification{
		UserID:    ev.UserID,
		Category:  CategoryChat,
		Message:   ev.Message,
		RelatedID: ev.RelatedID,
		ChatID:    ev.ChatID,
		CreatedAt: s.createdAt(ev),
	}
	id, err := s.repo.Insert(ctx, &n)
	if err != nil {
		return fmt.Errorf("insert chat notification: %w", err)
	}
	n.ID = id

	s.bcast.ToChat(n.ChatID, n.Category, n)
	s.bcast.ToUser(n.UserID, n.Category, n)
	s.mirrorToDevices(ctx, n)
	return s.PushUnreadSnapshot(ctx, n.UserID)
}

// IngestPayment persists two records per event, one re-keyed to the seller
// and one to the buyer. Each side gets its own record push, unread count and
// history list; the sides stay fully independent afterwards.
//
// The two inserts are not atomic: a failure between them leaves the first
// record committed, and the redelivered message inserts it again. Queue
// delivery is at-least-once anyway, so consumers must tolerate duplicates.
func (s *NotificationService) IngestPayment(ctx context.Context, ev InboundEvent) error {
	sides := []int64{ev.SellerID, ev.BuyerID}
	for _, owner := range sides {
		n := Notification{
			UserID:    owner,
			BuyerID:   ev.BuyerID,
			SellerID:  ev.SellerID,
			ListingID: ev.ListingID,
			Category:  CategoryPayment,
			Message:   ev.Message,
			RelatedID: ev.RelatedID,
			CreatedAt: s.createdAt(ev),
		}
		id, err := s.repo.Insert(ctx, &n)
		if err != nil {
			return fmt.Errorf("insert payment notification for user %d: %w", owner, err)
		}
		n.ID = id

		s.bcast.ToUser(owner, n.Category, n)
		s.mirrorToDevices(ctx, n)
	}
	for _, owner := range sides {
		if err := s.PushPaymentState(ctx, owner); err != nil {
			return err
		}
	}
	return nil
}

// IngestOffer persists a minimal offer record. The record itself is not
// pushed; only the recomputed offer count goes to the user room.
func (s *NotificationService) IngestOffer(ctx context.Context, ev InboundEvent) error {
	n := Notification{
		UserID:    ev.UserID,
		Category:  CategoryOffer,
		CreatedAt: s.createdAt(ev),
	}
	if _, err := s.repo.Insert(ctx, &n); err != nil {
		return fmt.Errorf("insert offer notification: %w", err)
	}
	return s.PushOfferCount(ctx, n.UserID)
}

// IngestAdminRequest persists a minimal admin-request record. user_id here is
// the staff member who triggered the event, not a recipient; the record is
// visible to every admin and its read flag is global.
func (s *NotificationService) IngestAdminRequest(ctx context.Context, ev InboundEvent) error {
	n := Notification{
		UserID:    ev.UserID,
		Category:  CategoryAdminRequest,
		CreatedAt: s.createdAt(ev),
	}
	if _, err := s.repo.Insert(ctx, &n); err != nil {
		return fmt.Errorf("insert admin request notification: %w", err)
	}
	return s.PushAdminState(ctx)
}

// MarkRead flips a single notification owned by the caller. ErrNotFound
// covers absent, foreign and already-read records alike; no push happens in
// that case.
func (s *NotificationService) MarkRead(ctx context.Context, userID int64, id primitive.ObjectID) error {
	if _, err := s.repo.ClaimRead(ctx, id, userID); err != nil {
		return err
	}
	return s.PushUnreadSnapshot(ctx, userID)
}

// MarkChatRead marks every unread chat record of one conversation. Idempotent:
// the snapshot is recomputed and pushed even when nothing matched.
func (s *NotificationService) MarkChatRead(ctx context.Context, userID int64, chatID string) (int64, error) {
	f := UserUnread(userID, CategoryChat)
	f.ChatID = &chatID
	modified, err := s.repo.MarkManyRead(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("mark chat read: %w", err)
	}
	if err := s.PushUnreadSnapshot(ctx, userID); err != nil {
		return modified, err
	}
	return modified, nil
}

// MarkPaymentsRead marks all unread payment records for the user.
func (s *NotificationService) MarkPaymentsRead(ctx context.Context, userID int64) (int64, error) {
	modified, err := s.repo.MarkManyRead(ctx, UserUnread(userID, CategoryPayment))
	if err != nil {
		return 0, fmt.Errorf("mark payments read: %w", err)
	}
	if err := s.PushPaymentCount(ctx, userID); err != nil {
		return modified, err
	}
	return modified, nil
}

// MarkOffersRead marks all unread offer records for the user.
func (s *NotificationService) MarkOffersRead(ctx context.Context, userID int64) (int64, error) {
	modified, err := s.repo.MarkManyRead(ctx, UserUnread(userID, CategoryOffer))
	if err != nil {
		return 0, fmt.Errorf("mark offers read: %w", err)
	}
	if err := s.PushOfferCount(ctx, userID); err != nil {
		return modified, err
	}
	return modified, nil
}

// MarkAdminRequestsRead marks every unread admin request, for all admins at
// once. Read state on this category is global, not per admin.
func (s *NotificationService) MarkAdminRequestsRead(ctx context.Context) (int64, error) {
	modified, err := s.repo.MarkManyRead(ctx, GlobalUnread(CategoryAdminRequest))
	if err != nil {
		return 0, fmt.Errorf("mark admin requests read: %w", err)
	}
	if err := s.PushAdminCount(ctx); err != nil {
		return modified, err
	}
	return modified, nil
}

// Recompute-and-push routines. Ingestion and mutation both funnel through
// these, so a pushed count is always read back from the store after the
// write, never captured before it.

func (s *NotificationService) PushUnreadSnapshot(ctx context.Context, userID int64) error {
	snap, err := s.unread.Snapshot(ctx, userID)
	if err != nil {
		return fmt.Errorf("recompute unread snapshot: %w", err)
	}
	s.bcast.ToUser(userID, EventUnreadCounts, snap)
	return nil
}

func (s *NotificationService) PushPaymentCount(ctx context.Context, userID int64) error {
	count, err := s.unread.ScalarUnreadCount(ctx, userID, CategoryPayment)
	if err != nil {
		return fmt.Errorf("recompute payment count: %w", err)
	}
	s.bcast.ToUser(userID, EventUnreadPayments, PaymentCount{Payments: count})
	return nil
}

// PushPaymentState pushes both the unread payment count and the full payment
// history list for one side of a transaction.
func (s *NotificationService) PushPaymentState(ctx context.Context, userID int64) error {
	if err := s.PushPaymentCount(ctx, userID); err != nil {
		return err
	}
	list, err := s.PaymentHistory(ctx, userID)
	if err != nil {
		return err
	}
	s.bcast.ToUser(userID, EventPaymentList, list)
	return nil
}

func (s *NotificationService) PushOfferCount(ctx context.Context, userID int64) error {
	count, err := s.unread.ScalarUnreadCount(ctx, userID, CategoryOffer)
	if err != nil {
		return fmt.Errorf("recompute offer count: %w", err)
	}
	s.bcast.ToUser(userID, EventUnreadOffers, OfferCount{Offers: count})
	return nil
}

func (s *NotificationService) PushAdminCount(ctx context.Context) error {
	count, err := s.unread.GlobalUnreadCount(ctx, CategoryAdminRequest)
	if err != nil {
		return fmt.Errorf("recompute admin request count: %w", err)
	}
	s.bcast.ToAdmins(EventUnreadRequests, AdminRequestCount{Admins: count})
	return nil
}

// PushAdminState pushes the global admin-request count and history list to
// the shared admin room.
func (s *NotificationService) PushAdminState(ctx context.Context) error {
	if err := s.PushAdminCount(ctx); err != nil {
		return err
	}
	list, err := s.AdminRequestHistory(ctx)
	if err != nil {
		return err
	}
	s.bcast.ToAdmins(EventAdminRequestList, list)
	return nil
}

// Read-only queries backing the synchronous facade.

func (s *NotificationService) Snapshot(ctx context.Context, userID int64) (*UnreadSnapshot, error) {
	return s.unread.Snapshot(ctx, userID)
}

func (s *NotificationService) UnreadChatDetails(ctx context.Context, userID int64) ([]ChatRef, error) {
	return s.unread.UnreadChatDetails(ctx, userID)
}

func (s *NotificationService) UnreadPaymentCount(ctx context.Context, userID int64) (int64, error) {
	return s.unread.ScalarUnreadCount(ctx, userID, CategoryPayment)
}

func (s *NotificationService) UnreadOfferCount(ctx context.Context, userID int64) (int64, error) {
	return s.unread.ScalarUnreadCount(ctx, userID, CategoryOffer)
}

func (s *NotificationService) UnreadAdminRequestCount(ctx context.Context) (int64, error) {
	return s.unread.GlobalUnreadCount(ctx, CategoryAdminRequest)
}

func (s *NotificationService) PaymentHistory(ctx context.Context, userID int64) (*NotificationList, error) {
	records, err := s.repo.Find(ctx, UserCategory(userID, CategoryPayment), true)
	if err != nil {
		return nil, fmt.Errorf("load payment history: %w", err)
	}
	return &NotificationList{Lists: records}, nil
}

func (s *NotificationService) AdminRequestHistory(ctx context.Context) (*NotificationList, error) {
	records, err := s.repo.Find(ctx, Filter{Category: CategoryAdminRequest}, true)
	if err != nil {
		return nil, fmt.Errorf("load admin request history: %w", err)
	}
	return &NotificationList{Lists: records}, nil
}

// RegisterDeviceToken stores an FCM token for mirror pushes to mobile.
func (s *NotificationService) RegisterDeviceToken(ctx context.Context, userID int64, token string) error {
	return s.tokens.SaveDeviceToken(ctx, userID, token)
}

// mirrorToDevices sends a best-effort FCM push for a freshly stored record.
// Failures are logged and never fail ingestion.
func (s *NotificationService) mirrorToDevices(ctx context.Context, n Notification) {
	if s.fcmClient == nil || s.tokens == nil {
		return
	}
	tokens, err := s.tokens.DeviceTokens(ctx, n.UserID)
	if err != nil {
		s.logger.Warn("failed to load device tokens", zap.Int64("user_id", n.UserID), zap.Error(err))
		return
	}
	data := map[string]string{
		"type": n.Category,
		"id":   n.ID.Hex(),
	}
	if n.RelatedID != "" {
		data["related_id"] = n.RelatedID
	}
	if n.ChatID != "" {
		data["chat_id"] = n.ChatID
	}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		go func(t string) {
			_ = s.fcmClient.Send(context.Background(), t, "New "+n.Category+" notification", n.Message, data)
		}(token)
	}
}
