package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/domain"
	"github.com/tradeloop/notification-service/pkg/response"
)

// bodyReadTimeout bounds how long a mutation endpoint waits for the request
// body to finish arriving.
const bodyReadTimeout = 5 * time.Second

var errBodyTimeout = errors.New("request body timed out")

type NotificationHandler struct {
	service *domain.NotificationService
	logger  *zap.Logger
}

func NewNotificationHandler(service *domain.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger,
	}
}

func userIDQuery(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
}

// decodeBody decodes a JSON body under a bounded wait and reports a timeout
// distinctly from a malformed body.
func decodeBody(r *http.Request, dst any) error {
	ctx, cancel := context.WithTimeout(r.Context(), bodyReadTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- json.NewDecoder(r.Body).Decode(dst)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errBodyTimeout
	}
}

// GetUnreadCounts returns the chat+comment unread snapshot for a user.
func (h *NotificationHandler) GetUnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		response.BadRequest(w, "invalid user_id")
		return
	}

	snap, err := h.service.Snapshot(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to compute unread snapshot", zap.Int64("user_id", userID), zap.Error(err))
		response.InternalError(w, "failed to fetch unread counts")
		return
	}
	response.OK(w, snap)
}

// GetUnreadDetails lists the user's unread chat records as (chat_id, type).
func (h *NotificationHandler) GetUnreadDetails(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		response.BadRequest(w, "invalid user_id")
		return
	}

	refs, err := h.service.UnreadChatDetails(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load unread details", zap.Int64("user_id", userID), zap.Error(err))
		response.InternalError(w, "failed to fetch unread details")
		return
	}
	response.OK(w, refs)
}

// MarkRead flips one notification owned by the caller. Missing, foreign and
// already-read records all answer 404.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64  `json:"user_id"`
		ID     string `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		if errors.Is(err, errBodyTimeout) {
			response.RequestTimeout(w, "request timed out")
			return
		}
		response.BadRequest(w, "invalid request body")
		return
	}

	id, err := primitive.ObjectIDFromHex(req.ID)
	if err != nil {
		response.BadRequest(w, "invalid notification id")
		return
	}

	if err := h.service.MarkRead(r.Context(), req.UserID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "notification not found or already read")
			return
		}
		h.logger.Error("failed to mark notification read", zap.Int64("user_id", req.UserID), zap.Error(err))
		response.InternalError(w, "failed to update notification")
		return
	}
	response.OK(w, map[string]string{"status": "success"})
}

// MarkChatRead marks one conversation read for a user. Idempotent: a second
// call succeeds with modified_count zero.
func (h *NotificationHandler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64  `json:"user_id"`
		ChatID string `json:"chat_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		if errors.Is(err, errBodyTimeout) {
			response.RequestTimeout(w, "request timed out")
			return
		}
		response.BadRequest(w, "invalid request body")
		return
	}

	modified, err := h.service.MarkChatRead(r.Context(), req.UserID, req.ChatID)
	if err != nil {
		h.logger.Error("failed to mark chat read",
			zap.Int64("user_id", req.UserID),
			zap.String("chat_id", req.ChatID),
			zap.Error(err),
		)
		response.InternalError(w, "failed to update notifications")
		return
	}
	response.OK(w, map[string]int64{"modified_count": modified})
}

// GetUnreadPayments returns the unread payment count for a user.
func (h *NotificationHandler) GetUnreadPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		response.BadRequest(w, "invalid user_id")
		return
	}

	count, err := h.service.UnreadPaymentCount(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count unread payments", zap.Int64("user_id", userID), zap.Error(err))
		response.InternalError(w, "failed to fetch unread payments")
		return
	}
	response.OK(w, domain.PaymentCount{Payments: count})
}

// GetAllPayments returns the user's payment history, newest first.
func (h *NotificationHandler) GetAllPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		response.BadRequest(w, "invalid user_id")
		return
	}

	list, err := h.service.PaymentHistory(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load payment history", zap.Int64("user_id", userID), zap.Error(err))
		response.InternalError(w, "failed to fetch payments")
		return
	}
	response.OK(w, list)
}

// MarkPaymentsRead marks all unread payment notifications for a user.
func (h *NotificationHandler) MarkPaymentsRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		if errors.Is(err, errBodyTimeout) {
			response.RequestTimeout(w, "request timed out")
			return
		}
		response.BadRequest(w, "invalid request body")
		return
	}

	modified, err := h.service.MarkPaymentsRead(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to mark payments read", zap.Int64("user_id", req.UserID), zap.Error(err))
		response.InternalError(w, "failed to update notifications")
		return
	}
	response.OK(w, map[string]int64{"modified_count": modified})
}

// GetUnreadOffers returns the unread offer count for a user.
func (h *NotificationHandler) GetUnreadOffers(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		response.BadRequest(w, "invalid user_id")
		return
	}

	count, err := h.service.UnreadOfferCount(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count unread offers", zap.Int64("user_id", userID), zap.Error(err))
		response.InternalError(w, "failed to fetch unread offers")
		return
	}
	response.OK(w, domain.OfferCount{Offers: count})
}

// MarkOffersRead marks all unread offer notifications for a user.
func (h *NotificationHandler) MarkOffersRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		if errors.Is(err, errBodyTimeout) {
			response.RequestTimeout(w, "request timed out")
			return
		}
		response.BadRequest(w, "invalid request body")
		return
	}

	modified, err := h.service.MarkOffersRead(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to mark offers read", zap.Int64("user_id", req.UserID), zap.Error(err))
		response.InternalError(w, "failed to update notifications")
		return
	}
	response.OK(w, map[string]int64{"modified_count": modified})
}

// GetUnreadAdminRequests returns the global unread admin-request count.
func (h *NotificationHandler) GetUnreadAdminRequests(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.UnreadAdminRequestCount(r.Context())
	if err != nil {
		h.logger.Error("failed to count unread admin requests", zap.Error(err))
		response.InternalError(w, "failed to fetch unread admin requests")
		return
	}
	response.OK(w, map[string]int64{"counts": count})
}

// MarkAdminRequestsRead marks every unread admin request, globally.
func (h *NotificationHandler) MarkAdminRequestsRead(w http.ResponseWriter, r *http.Request) {
	modified, err := h.service.MarkAdminRequestsRead(r.Context())
	if err != nil {
		h.logger.Error("failed to mark admin requests read", zap.Error(err))
		response.InternalError(w, "failed to update notifications")
		return
	}
	response.OK(w, map[string]int64{"modified_count": modified})
}

// GetAllAdminRequests returns the admin-request history, newest first.
func (h *NotificationHandler) GetAllAdminRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.AdminRequestHistory(r.Context())
	if err != nil {
		h.logger.Error("failed to load admin request history", zap.Error(err))
		response.InternalError(w, "failed to fetch admin requests")
		return
	}
	response.OK(w, list)
}

// RegisterDeviceToken stores an FCM registration token for mirror pushes.
func (h *NotificationHandler) RegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64  `json:"user_id"`
		Token  string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		if errors.Is(err, errBodyTimeout) {
			response.RequestTimeout(w, "request timed out")
			return
		}
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Token == "" {
		response.BadRequest(w, "token is required")
		return
	}

	if err := h.service.RegisterDeviceToken(r.Context(), req.UserID, req.Token); err != nil {
		h.logger.Error("failed to save device token", zap.Int64("user_id", req.UserID), zap.Error(err))
		response.InternalError(w, "failed to save device token")
		return
	}
	response.OK(w, map[string]string{"status": "success"})
}
