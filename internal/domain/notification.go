package domain

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification categories. The category doubles as the wire event name when
// the record itself is pushed to a room.
const (
	CategoryChat         = "chat"
	CategoryComment      = "comment"
	CategoryPayment      = "payment_success"
	CategoryOffer        = "offer"
	CategoryAdminRequest = "admin_request"
)

// ErrNotFound is returned when a mutation target does not exist, is not owned
// by the caller, or is already read. Callers cannot tell these apart.
var ErrNotFound = errors.New("notification not found")

// Notification is the persisted record. Immutable after creation except for
// Read, which only ever transitions false to true.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    int64              `bson:"user_id" json:"user_id"`
	Category  string             `bson:"type" json:"type"`
	Message   string             `bson:"message,omitempty" json:"message,omitempty"`
	RelatedID string             `bson:"related_id,omitempty" json:"related_id,omitempty"`
	ChatID    string             `bson:"chat_id,omitempty" json:"chat_id,omitempty"`
	BuyerID   int64              `bson:"buyer_id,omitempty" json:"buyer_id,omitempty"`
	SellerID  int64              `bson:"seller_id,omitempty" json:"seller_id,omitempty"`
	ListingID int64              `bson:"listing_id,omitempty" json:"listing_id,omitempty"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Filter is a conjunction of equality predicates over notification fields.
// Nil pointers and empty strings are not matched.
type Filter struct {
	ID       *primitive.ObjectID
	UserID   *int64
	Category string
	ChatID   *string
	Read     *bool
}

// Helper constructors keep call sites terse.

func UserUnread(userID int64, category string) Filter {
	read := false
	return Filter{UserID: &userID, Category: category, Read: &read}
}

func GlobalUnread(category string) Filter {
	read := false
	return Filter{Category: category, Read: &read}
}

func UserCategory(userID int64, category string) Filter {
	return Filter{UserID: &userID, Category: category}
}

// NotificationRepository is the store boundary: a document store exposing
// filter, count, bulk-update and atomic-claim primitives.
type NotificationRepository interface {
	Insert(ctx context.Context, n *Notification) (primitive.ObjectID, error)
	Find(ctx context.Context, f Filter, newestFirst bool) ([]Notification, error)
	Count(ctx context.Context, f Filter) (int64, error)
	// MarkManyRead applies read=true to every record matching f and returns
	// the number of records actually modified.
	MarkManyRead(ctx context.Context, f Filter) (int64, error)
	// ClaimRead atomically flips read on the single record matching
	// (id, userID, read=false). Returns ErrNotFound when nothing matches.
	ClaimRead(ctx context.Context, id primitive.ObjectID, userID int64) (*Notification, error)
	// DistinctUnreadChats returns the distinct chat ids that still carry at
	// least one unread chat record for the user.
	DistinctUnreadChats(ctx context.Context, userID int64) ([]string, error)
}

// DeviceTokenRepository stores FCM registration tokens per user.
type DeviceTokenRepository interface {
	SaveDeviceToken(ctx context.Context, userID int64, token string) error
	DeviceTokens(ctx context.Context, userID int64) ([]string, error)
}
