package identity

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

// rangeEnd closes a prefix range query; everything between the prefix and
// this sentinel sorts inside the prefix.
const rangeEnd = "" // U+F8FF, sorts after every printable code point

type MongoResolver struct {
	coll  *mongo.Collection
	limit int64
}

func NewMongoResolver(db *mongo.Database, searchLimit int) *MongoResolver {
	if searchLimit <= 0 {
		searchLimit = 20
	}
	return &MongoResolver{coll: db.Collection("profiles"), limit: int64(searchLimit)}
}

func (r *MongoResolver) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// SearchProfiles issues one prefix range query per case variant of term and
// merges the results, deduplicated by id.
func (r *MongoResolver) SearchProfiles(ctx context.Context, term string) ([]*models.Profile, error) {
	var matches []*models.Profile
	for _, v := range searchVariants(term) {
		filter := bson.M{"display_name": bson.M{"$gte": v, "$lte": v + rangeEnd}}
		cur, err := r.coll.Find(ctx, filter, options.Find().SetLimit(r.limit))
		if err != nil {
			return nil, err
		}
		for cur.Next(ctx) {
			var p models.Profile
			if err := cur.Decode(&p); err != nil {
				cur.Close(ctx)
				return nil, err
			}
			matches = append(matches, &p)
		}
		if err := cur.Err(); err != nil {
			cur.Close(ctx)
			return nil, err
		}
		cur.Close(ctx)
	}
	out := dedupeProfiles(matches)
	if int64(len(out)) > r.limit {
		out = out[:r.limit]
	}
	return out, nil
}
