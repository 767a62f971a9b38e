package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/agriclip/chat-service/internal/models"
)

// MongoUploads resolves upload references against the uploads collection
// written by the media pipeline. Read-only.
type MongoUploads struct {
	coll *mongo.Collection
}

func NewMongoUploads(coll *mongo.Collection) *MongoUploads {
	return &MongoUploads{coll: coll}
}

func (u *MongoUploads) Resolve(ctx context.Context, uploadID, ownerID string) (*models.Upload, error) {
	var up models.Upload
	err := u.coll.FindOne(ctx, bson.M{"_id": uploadID, "userId": ownerID}).Decode(&up)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &up, nil
}
