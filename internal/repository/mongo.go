package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tradeloop/notification-service/internal/domain"
)

// MongoRepository implements domain.NotificationRepository and
// domain.DeviceTokenRepository on MongoDB.
type MongoRepository struct {
	notifications *mongo.Collection
	deviceTokens  *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		notifications: db.Collection("notifications"),
		deviceTokens:  db.Collection("device_tokens"),
	}
}

func filterToBson(f domain.Filter) bson.M {
	q := bson.M{}
	if f.ID != nil {
		q["_id"] = *f.ID
	}
	if f.UserID != nil {
		q["user_id"] = *f.UserID
	}
	if f.Category != "" {
		q["type"] = f.Category
	}
	if f.ChatID != nil {
		q["chat_id"] = *f.ChatID
	}
	if f.Read != nil {
		q["read"] = *f.Read
	}
	return q
}

func (r *MongoRepository) Insert(ctx context.Context, n *domain.Notification) (primitive.ObjectID, error) {
	res, err := r.notifications.InsertOne(ctx, n)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert notification: %w", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return id, nil
}

func (r *MongoRepository) Find(ctx context.Context, f domain.Filter, newestFirst bool) ([]domain.Notification, error) {
	opts := options.Find()
	if newestFirst {
		opts.SetSort(bson.D{{Key: "created_at", Value: -1}})
	}
	cur, err := r.notifications.Find(ctx, filterToBson(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer cur.Close(ctx)

	var records []domain.Notification
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return records, nil
}

func (r *MongoRepository) Count(ctx context.Context, f domain.Filter) (int64, error) {
	count, err := r.notifications.CountDocuments(ctx, filterToBson(f))
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

func (r *MongoRepository) MarkManyRead(ctx context.Context, f domain.Filter) (int64, error) {
	res, err := r.notifications.UpdateMany(ctx, filterToBson(f), bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) ClaimRead(ctx context.Context, id primitive.ObjectID, userID int64) (*domain.Notification, error) {
	filter := bson.M{"_id": id, "user_id": userID, "read": false}
	update := bson.M{"$set": bson.M{"read": true}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n domain.Notification
	err := r.notifications.FindOneAndUpdate(ctx, filter, update, opts).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("claim notification read: %w", err)
	}
	return &n, nil
}

func (r *MongoRepository) DistinctUnreadChats(ctx context.Context, userID int64) ([]string, error) {
	filter := bson.M{"user_id": userID, "type": domain.CategoryChat, "read": false}
	values, err := r.notifications.Distinct(ctx, "chat_id", filter)
	if err != nil {
		return nil, fmt.Errorf("distinct unread chats: %w", err)
	}
	chats := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			chats = append(chats, s)
		}
	}
	return chats, nil
}

func (r *MongoRepository) SaveDeviceToken(ctx context.Context, userID int64, token string) error {
	filter := bson.M{"user_id": userID, "token": token}
	update := bson.M{"$set": bson.M{"user_id": userID, "token": token}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.deviceTokens.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("save device token: %w", err)
	}
	return nil
}

func (r *MongoRepository) DeviceTokens(ctx context.Context, userID int64) ([]string, error) {
	cur, err := r.deviceTokens.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("find device tokens: %w", err)
	}
	defer cur.Close(ctx)

	var docs []struct {
		Token string `bson:"token"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode device tokens: %w", err)
	}
	tokens := make([]string, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.Token)
	}
	return tokens, nil
}
