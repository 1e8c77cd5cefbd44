package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

const watchBackoff = time.Second

// MongoStore implements Store on two collections. Live subscriptions use
// change streams; on every relevant change the filtered query is re-run and
// the fresh snapshot pushed, so subscribers always see the authoritative
// store-ordered view. Transient stream errors resubscribe with backoff.
type MongoStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	log           *zap.SugaredLogger
}

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

func NewMongoStore(db *mongo.Database, log *zap.SugaredLogger) *MongoStore {
	s := &MongoStore{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		log:           log,
	}
	// Best effort: a missing index degrades to the unordered fallback below,
	// it never fails the store.
	_, _ = s.conversations.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		Options: options.Index().SetName("participants_updated_idx"),
	})
	_, _ = s.messages.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("conversation_created_idx"),
	})
	return s
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	if len(conv.Participants) != 2 || conv.Participants[0] == conv.Participants[1] {
		return nil, false, ErrInvalidConversation
	}
	stored := conv.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	_, err := s.conversations.InsertOne(ctx, stored)
	if err == nil {
		return stored, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}
	// Lost the creation race; the record that won is the conversation.
	existing, gerr := s.GetConversation(ctx, conv.ID)
	if gerr != nil {
		return nil, false, gerr
	}
	return existing, false, nil
}

func (s *MongoStore) MergeConversation(ctx context.Context, id string, fields map[string]any) error {
	set := bson.M{}
	current := bson.M{}
	for path, v := range fields {
		if IsServerTimestamp(v) {
			current[path] = true
			continue
		}
		set[path] = v
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(current) > 0 {
		update["$currentDate"] = current
	}
	if len(update) == 0 {
		return nil
	}
	res, err := s.conversations.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementUnread(ctx context.Context, convID, userID string, delta int) error {
	res, err := s.conversations.UpdateByID(ctx, convID,
		bson.M{"$inc": bson.M{"unread_counts." + userID: delta}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, convID, senderID, text string) (*models.Message, error) {
	doc := bson.M{
		"conversation_id": convID,
		"sender_id":       senderID,
		"text":            text,
		"read":            false,
	}
	// Upsert on a fresh id so $currentDate assigns created_at at commit time;
	// the returned document carries the authoritative timestamp.
	id := uuid.NewString()
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var m models.Message
	err := s.messages.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$setOnInsert": doc, "$currentDate": bson.M{"created_at": true}},
		opts).Decode(&m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, convID string) ([]*models.Message, error) {
	msgs, _, err := s.fetchMessages(ctx, convID)
	return msgs, err
}

func (s *MongoStore) MarkMessageRead(ctx context.Context, convID, msgID string) (bool, error) {
	res, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": msgID, "conversation_id": convID, "read": false},
		bson.M{"$set": bson.M{"read": true}, "$currentDate": bson.M{"read_at": true}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) WatchConversations(ctx context.Context, userID string) (*ConversationWatch, error) {
	snapshot, ordered, err := s.fetchConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(ctx)
	updates := make(chan []*models.Conversation, 1)
	w := NewConversationWatch(updates, ordered, cancel)
	pushLatest(updates, snapshot)
	go s.runWatch(wctx, s.conversations,
		bson.M{"fullDocument.participants": userID},
		func(qctx context.Context) error {
			snap, _, err := s.fetchConversations(qctx, userID)
			if err != nil {
				return err
			}
			pushLatest(updates, snap)
			return nil
		},
		func() { close(updates) })
	return w, nil
}

func (s *MongoStore) WatchMessages(ctx context.Context, convID string) (*MessageWatch, error) {
	snapshot, ordered, err := s.fetchMessages(ctx, convID)
	if err != nil {
		return nil, err
	}
	wctx, cancel := context.WithCancel(ctx)
	updates := make(chan []*models.Message, 1)
	w := NewMessageWatch(updates, ordered, cancel)
	pushLatest(updates, snapshot)
	go s.runWatch(wctx, s.messages,
		bson.M{"fullDocument.conversation_id": convID},
		func(qctx context.Context) error {
			snap, _, err := s.fetchMessages(qctx, convID)
			if err != nil {
				return err
			}
			pushLatest(updates, snap)
			return nil
		},
		func() { close(updates) })
	return w, nil
}

// runWatch holds one change stream open and re-queries on every matching
// event. The stream auto-resubscribes on transient failure until ctx ends.
func (s *MongoStore) runWatch(ctx context.Context, coll *mongo.Collection, match bson.M, refetch func(context.Context) error, done func()) {
	defer done()
	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	for {
		stream, err := coll.Watch(ctx, pipeline, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warnw("change stream open failed, retrying", "collection", coll.Name(), "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(watchBackoff):
			}
			continue
		}
		for stream.Next(ctx) {
			if err := refetch(ctx); err != nil {
				s.log.Warnw("snapshot refresh failed", "collection", coll.Name(), "err", err)
			}
		}
		_ = stream.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		s.log.Warnw("change stream interrupted, resubscribing", "collection", coll.Name(), "err", stream.Err())
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchBackoff):
		}
	}
}

// fetchConversations prefers the store-served updated_at order and degrades
// to an unordered scan when the server rejects the sort (missing index).
// ordered=false tells the subscriber to sort client-side.
func (s *MongoStore) fetchConversations(ctx context.Context, userID string) ([]*models.Conversation, bool, error) {
	filter := bson.M{"participants": userID}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := s.conversations.Find(ctx, filter, opts)
	ordered := true
	if err != nil {
		s.log.Warnw("ordered conversation query failed, falling back to client sort", "err", err)
		ordered = false
		cur, err = s.conversations.Find(ctx, filter)
		if err != nil {
			return nil, false, err
		}
	}
	defer cur.Close(ctx)
	var out []*models.Conversation
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, false, err
		}
		out = append(out, &c)
	}
	return out, ordered, cur.Err()
}

func (s *MongoStore) fetchMessages(ctx context.Context, convID string) ([]*models.Message, bool, error) {
	filter := bson.M{"conversation_id": convID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.messages.Find(ctx, filter, opts)
	ordered := true
	if err != nil {
		s.log.Warnw("ordered message query failed, falling back to client sort", "err", err)
		ordered = false
		cur, err = s.messages.Find(ctx, filter)
		if err != nil {
			return nil, false, err
		}
	}
	defer cur.Close(ctx)
	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, false, err
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}
	if !ordered {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}
	return out, ordered, nil
}
