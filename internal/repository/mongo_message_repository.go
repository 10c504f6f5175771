package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"parley-chat/internal/domain/message"
	"parley-chat/internal/domain/room"
	parley_errors "parley-chat/pkg/errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	messagesCollection = "messages"
	pinsCollection     = "pins"
)

type attachmentDocument struct {
	URL      string `bson:"url"`
	Name     string `bson:"name"`
	MimeType string `bson:"mime_type"`
	Size     int64  `bson:"size,omitempty"`
}

type reactionDocument struct {
	UserID string `bson:"user_id"`
	Emoji  string `bson:"emoji"`
}

type messageDocument struct {
	ID              primitive.ObjectID   `bson:"_id"`
	SenderID        string               `bson:"sender_id"`
	GroupID         string               `bson:"group_id,omitempty"`
	ReceiverID      string               `bson:"receiver_id,omitempty"`
	ConversationKey string               `bson:"conversation_key"`
	Content         string               `bson:"content"`
	Type            string               `bson:"type"`
	Attachments     []attachmentDocument `bson:"attachments"`
	ClientTempID    string               `bson:"client_temp_id,omitempty"`
	ReplyTo         string               `bson:"reply_to,omitempty"`
	CreatedAt       time.Time            `bson:"created_at"`
	SeenBy          []string             `bson:"seen_by"`
	Reactions       []reactionDocument   `bson:"reactions"`
	IsDeleted       bool                 `bson:"is_deleted"`
	DeletedFor      []string             `bson:"deleted_for"`
}

type pinDocument struct {
	ConversationKey string    `bson:"_id"`
	MessageID       string    `bson:"message_id"`
	PinnedBy        string    `bson:"pinned_by"`
	PinnedAt        time.Time `bson:"pinned_at"`
}

type MongoMessageRepository struct {
	messages *mongo.Collection
	pins     *mongo.Collection
}

func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{
		messages: db.Collection(messagesCollection),
		pins:     db.Collection(pinsCollection),
	}
}

// EnsureIndexes creates the history index. Safe to call on every start.
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_key", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "client_temp_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

func (r *MongoMessageRepository) Append(ctx context.Context, m *message.Message) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}
	if err := m.Normalize(); err != nil {
		return "", fmt.Errorf("%w: %v", parley_errors.ErrValidation, err)
	}

	oid := primitive.NewObjectID()
	created := time.Now().UTC().Truncate(time.Millisecond)

	doc := toDocument(*m)
	doc.ID = oid
	doc.CreatedAt = created

	if _, err := r.messages.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	m.ID = oid.Hex()
	m.CreatedAt = created
	return m.ID, nil
}

func (r *MongoMessageRepository) GetByID(ctx context.Context, id string) (message.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return message.Message{}, parley_errors.ErrNotFound
	}
	var doc messageDocument
	if err := r.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return message.Message{}, parley_errors.ErrNotFound
		}
		return message.Message{}, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return fromDocument(doc), nil
}

func (r *MongoMessageRepository) MarkSeen(ctx context.Context, id string, userID uuid.UUID) error {
	return r.updateByID(ctx, id, bson.M{"$addToSet": bson.M{"seen_by": userID.String()}})
}

func (r *MongoMessageRepository) MarkConversationSeen(ctx context.Context, key room.Key, userID uuid.UUID) (int64, error) {
	uid := userID.String()
	filter := bson.M{
		"conversation_key": key.String(),
		"sender_id":        bson.M{"$ne": uid},
		"is_deleted":       false,
		"deleted_for":      bson.M{"$ne": uid},
		"seen_by":          bson.M{"$ne": uid},
	}
	res, err := r.messages.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{"seen_by": uid}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return res.ModifiedCount, nil
}

// AddReaction rewrites the reactions array server side in one update so a
// concurrent reaction from another user is never lost between a pull and a push.
func (r *MongoMessageRepository) AddReaction(ctx context.Context, id string, userID uuid.UUID, emoji string) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "reactions", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
			withoutReaction(userID.String(), emoji),
			bson.A{bson.D{
				{Key: "user_id", Value: literal(userID.String())},
				{Key: "emoji", Value: literal(emoji)},
			}},
		}}}}}}},
	}
	return r.updateByID(ctx, id, update)
}

func (r *MongoMessageRepository) RemoveReaction(ctx context.Context, id string, userID uuid.UUID, emoji string) error {
	return r.updateByID(ctx, id, bson.M{"$pull": bson.M{"reactions": bson.M{"user_id": userID.String(), "emoji": emoji}}})
}

func (r *MongoMessageRepository) SetPin(ctx context.Context, key room.Key, messageID *string, pinnedBy uuid.UUID) error {
	if messageID == nil {
		if _, err := r.pins.DeleteOne(ctx, bson.M{"_id": key.String()}); err != nil {
			return fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
		}
		return nil
	}
	doc := pinDocument{
		ConversationKey: key.String(),
		MessageID:       *messageID,
		PinnedBy:        pinnedBy.String(),
		PinnedAt:        time.Now().UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.pins.ReplaceOne(ctx, bson.M{"_id": key.String()}, doc, opts); err != nil {
		return fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return nil
}

func (r *MongoMessageRepository) GetPin(ctx context.Context, key room.Key) (*message.Pin, error) {
	var doc pinDocument
	if err := r.pins.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	pinnedBy, _ := uuid.Parse(doc.PinnedBy)
	return &message.Pin{
		ConversationKey: room.Key(doc.ConversationKey),
		MessageID:       doc.MessageID,
		PinnedBy:        pinnedBy,
		PinnedAt:        doc.PinnedAt,
	}, nil
}

func (r *MongoMessageRepository) ListHistory(ctx context.Context, key room.Key, viewerID uuid.UUID, cursor string, limit int) (message.Page, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return message.Page{}, err
	}
	limit = clampLimit(limit)

	filter, err := historyFilter(key, viewerID, after)
	if err != nil {
		return message.Page{}, err
	}

	msgs, err := r.find(ctx, filter, int64(limit+1))
	if err != nil {
		return message.Page{}, err
	}
	page := message.Page{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		page.NextCursor = encodeCursor(page.Messages[limit-1])
	}
	return page, nil
}

func (r *MongoMessageRepository) Search(ctx context.Context, key room.Key, viewerID uuid.UUID, query string, limit int) ([]message.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", parley_errors.ErrValidation)
	}
	filter := visibleFilter(key, viewerID)
	filter["content"] = primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return r.find(ctx, filter, int64(clampLimit(limit)))
}

func (r *MongoMessageRepository) Recall(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"is_deleted": true}})
}

func (r *MongoMessageRepository) DeleteFor(ctx context.Context, id string, userID uuid.UUID) error {
	return r.updateByID(ctx, id, bson.M{"$addToSet": bson.M{"deleted_for": userID.String()}})
}

func (r *MongoMessageRepository) find(ctx context.Context, filter bson.M, limit int64) ([]message.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	cur, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	defer cur.Close(ctx)

	out := []message.Message{}
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
		}
		out = append(out, fromDocument(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	return out, nil
}

func (r *MongoMessageRepository) updateByID(ctx context.Context, id string, update interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return parley_errors.ErrNotFound
	}
	res, err := r.messages.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("%w: %v", parley_errors.ErrPersistence, err)
	}
	if res.MatchedCount == 0 {
		return parley_errors.ErrNotFound
	}
	return nil
}

func visibleFilter(key room.Key, viewerID uuid.UUID) bson.M {
	return bson.M{
		"conversation_key": key.String(),
		"is_deleted":       false,
		"deleted_for":      bson.M{"$ne": viewerID.String()},
	}
}

// historyFilter selects visible messages strictly older than after, in
// (created_at, _id) order.
func historyFilter(key room.Key, viewerID uuid.UUID, after *historyCursor) (bson.M, error) {
	filter := visibleFilter(key, viewerID)
	if after == nil {
		return filter, nil
	}
	oid, err := primitive.ObjectIDFromHex(after.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", parley_errors.ErrValidation)
	}
	filter["$or"] = bson.A{
		bson.M{"created_at": bson.M{"$lt": after.CreatedAt}},
		bson.M{"created_at": after.CreatedAt, "_id": bson.M{"$lt": oid}},
	}
	return filter, nil
}

func withoutReaction(userID, emoji string) bson.D {
	return bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$reactions", bson.A{}}}}},
		{Key: "as", Value: "r"},
		{Key: "cond", Value: bson.D{{Key: "$not", Value: bson.A{bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$$r.user_id", literal(userID)}}},
			bson.D{{Key: "$eq", Value: bson.A{"$$r.emoji", literal(emoji)}}},
		}}}}}}},
	}}}
}

func literal(v string) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

func toDocument(m message.Message) messageDocument {
	doc := messageDocument{
		SenderID:        m.SenderID.String(),
		ConversationKey: m.ConversationKey.String(),
		Content:         m.Content,
		Type:            string(m.Type),
		Attachments:     make([]attachmentDocument, 0, len(m.Attachments)),
		ClientTempID:    m.ClientTempID,
		ReplyTo:         m.ReplyTo,
		SeenBy:          uuidStrings(m.SeenBy),
		Reactions:       make([]reactionDocument, 0, len(m.Reactions)),
		IsDeleted:       m.IsDeleted,
		DeletedFor:      uuidStrings(m.DeletedFor),
	}
	if m.GroupID.Valid {
		doc.GroupID = m.GroupID.UUID.String()
	}
	if m.ReceiverID.Valid {
		doc.ReceiverID = m.ReceiverID.UUID.String()
	}
	for _, a := range m.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDocument(a))
	}
	for _, rc := range m.Reactions {
		doc.Reactions = append(doc.Reactions, reactionDocument{UserID: rc.UserID.String(), Emoji: rc.Emoji})
	}
	return doc
}

func fromDocument(doc messageDocument) message.Message {
	m := message.Message{
		ID:              doc.ID.Hex(),
		SenderID:        parseUUID(doc.SenderID),
		ConversationKey: room.Key(doc.ConversationKey),
		Content:         doc.Content,
		Type:            message.Type(doc.Type),
		Attachments:     make([]message.Attachment, 0, len(doc.Attachments)),
		ClientTempID:    doc.ClientTempID,
		ReplyTo:         doc.ReplyTo,
		CreatedAt:       doc.CreatedAt.UTC(),
		SeenBy:          parseUUIDs(doc.SeenBy),
		Reactions:       make([]message.Reaction, 0, len(doc.Reactions)),
		IsDeleted:       doc.IsDeleted,
		DeletedFor:      parseUUIDs(doc.DeletedFor),
	}
	if doc.GroupID != "" {
		m.GroupID = uuid.NullUUID{UUID: parseUUID(doc.GroupID), Valid: true}
	}
	if doc.ReceiverID != "" {
		m.ReceiverID = uuid.NullUUID{UUID: parseUUID(doc.ReceiverID), Valid: true}
	}
	for _, a := range doc.Attachments {
		m.Attachments = append(m.Attachments, message.Attachment(a))
	}
	for _, rc := range doc.Reactions {
		m.Reactions = append(m.Reactions, message.Reaction{UserID: parseUUID(rc.UserID), Emoji: rc.Emoji})
	}
	return m
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func parseUUIDs(values []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		out = append(out, parseUUID(v))
	}
	return out
}

func parseUUID(value string) uuid.UUID {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil
	}
	return id
}
