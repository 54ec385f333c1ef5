package domain

// Server->client event names for recomputed counts and lists. Record pushes
// reuse the notification category as the event name.
const (
	EventUnreadCounts     = "unread_counts"
	EventUnreadPayments   = "unread_payment_count"
	EventUnreadOffers     = "unread_offer_count"
	EventUnreadRequests   = "unread_request_count"
	EventPaymentList      = "payment_list"
	EventAdminRequestList = "admin_request_list"
)

// Broadcaster delivers events to subscription groups. Delivery is best-effort
// and fire-and-forget: pushes to empty rooms are dropped, and reconnecting
// clients are expected to pull the current snapshot instead.
type Broadcaster interface {
	ToUser(userID int64, event string, payload any)
	ToChat(chatID string, event string, payload any)
	ToAdmins(event string, payload any)
}

// UnreadSnapshot is the combined chat+comment unread state for one user.
// Chat counts distinct unread conversations, not unread records.
type UnreadSnapshot struct {
	Chat     int64 `json:"chat"`
	Comments int64 `json:"comments"`
}

type PaymentCount struct {
	Payments int64 `json:"payments"`
}

type OfferCount struct {
	Offers int64 `json:"offers"`
}

type AdminRequestCount struct {
	Admins int64 `json:"admins"`
}

// NotificationList wraps history lists pushed and served newest-first.
type NotificationList struct {
	Lists []Notification `json:"lists"`
}

// ChatRef identifies an unread conversation in the unread-details listing.
type ChatRef struct {
	ChatID   string `json:"chat_id"`
	Category string `json:"type"`
}
