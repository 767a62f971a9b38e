package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agriclip/chat-service/internal/models"
)

// MongoStore is the production MessageStore, one document per message.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "sessionId", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("user_session_created_idx"),
	}
	_, _ = coll.Indexes().CreateOne(context.Background(), ix)
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Append(ctx context.Context, m *models.Message) (*models.Message, error) {
	if m.Status == "" {
		m.Status = models.StatusSent
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	cp := *m
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now().UTC()
	if _, err := s.coll.InsertOne(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MongoStore) History(ctx context.Context, userID, sessionID string, limit int64) ([]*models.Message, error) {
	filter := bson.M{"userId": userID, "sessionId": sessionID, "isDeleted": false}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Message{}
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (s *MongoStore) Sessions(ctx context.Context, userID string, limit int64) ([]*SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID, "isDeleted": false}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":           "$sessionId",
			"lastMessageAt": bson.M{"$first": "$createdAt"},
			"lastText":      bson.M{"$first": "$content.text"},
			"messageCount":  bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessageAt", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*SessionSummary{}
	for cur.Next(ctx) {
		var sum SessionSummary
		if err := cur.Decode(&sum); err != nil {
			return nil, err
		}
		out = append(out, &sum)
	}
	return out, cur.Err()
}

func (s *MongoStore) Edit(ctx context.Context, messageID, userID, text string) (*models.Message, error) {
	if text == "" || len([]rune(text)) > models.MaxTextLen {
		v := &models.ValidationError{}
		v.Add("content.text", "message text must be between 1 and 5000 characters")
		return nil, v
	}
	// Owner and type scoping happen in the filter so existence is not
	// disclosed to non-owners.
	filter := bson.M{"_id": messageID, "userId": userID, "messageType": models.MessageTypeUser, "isDeleted": false}
	var m models.Message
	if err := s.coll.FindOne(ctx, filter).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if time.Since(m.CreatedAt) > EditWindow {
		return nil, ErrEditExpired
	}
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"content.text": text, "isEdited": true, "editedAt": now}}
	if _, err := s.coll.UpdateByID(ctx, messageID, update); err != nil {
		return nil, err
	}
	m.Content.Text = text
	m.IsEdited = true
	m.EditedAt = &now
	return &m, nil
}

func (s *MongoStore) SoftDelete(ctx context.Context, messageID, userID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": messageID, "userId": userID},
		bson.M{"$set": bson.M{"isDeleted": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SoftDeleteSession(ctx context.Context, sessionID, userID string) error {
	_, err := s.coll.UpdateMany(ctx,
		bson.M{"sessionId": sessionID, "userId": userID},
		bson.M{"$set": bson.M{"isDeleted": true}})
	return err
}

func (s *MongoStore) AddReaction(ctx context.Context, messageID, userID string, r models.Reaction) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": messageID, "isDeleted": false},
		bson.M{"$set": bson.M{"reactions." + userID: r}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
