package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-feed/pkg/simplefeed"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names.
const (
	ContentCollection = "feed_content"
	ProfileCollection = "feed_profiles"
)

// Repository implements simplefeed.Repository using MongoDB. Each record is
// one document with likes and comments embedded; every engagement mutation is
// a single-document update, which MongoDB applies atomically.
type Repository struct {
	db *mongo.Database
}

// New creates a repository over db
func New(db *mongo.Database) *Repository {
	return &Repository{db: db}
}

var _ simplefeed.Repository = (*Repository)(nil)

func (r *Repository) contents() *mongo.Collection { return r.db.Collection(ContentCollection) }
func (r *Repository) profiles() *mongo.Collection { return r.db.Collection(ProfileCollection) }

// EnsureIndexes creates the feed index. It is safe to call repeatedly.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.contents().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("feed_order"),
		},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", ContentCollection, err)
	}
	return nil
}

func afterUpdate() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func decodeRecord(res *mongo.SingleResult) (*simplefeed.ContentRecord, error) {
	var doc contentDoc
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, simplefeed.ErrContentNotFound
		}
		return nil, err
	}
	return doc.toRecord()
}

// Content operations

func (r *Repository) CreateContent(ctx context.Context, content *simplefeed.ContentRecord) error {
	if _, err := r.contents().InsertOne(ctx, fromRecord(content)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("content already exists")
		}
		return fmt.Errorf("failed to insert content: %w", err)
	}
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*simplefeed.ContentRecord, error) {
	return decodeRecord(r.contents().FindOne(ctx, bson.M{"_id": id.String()}))
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) error {
	res, err := r.contents().DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	if res.DeletedCount == 0 {
		return simplefeed.ErrContentNotFound
	}
	return nil
}

func (r *Repository) ListFeed(ctx context.Context, q simplefeed.FeedQuery) ([]*simplefeed.ContentRecord, error) {
	filter := bson.M{"kind": string(q.Kind)}
	if q.Before != nil {
		if q.Before.ID == uuid.Nil {
			filter["created_at"] = bson.M{"$lt": q.Before.CreatedAt}
		} else {
			filter["$or"] = bson.A{
				bson.M{"created_at": bson.M{"$lt": q.Before.CreatedAt}},
				bson.M{"created_at": q.Before.CreatedAt, "_id": bson.M{"$lt": q.Before.ID.String()}},
			}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.contents().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed: %w", err)
	}
	var docs []contentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	result := make([]*simplefeed.ContentRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// Engagement operations

func (r *Repository) ToggleLike(ctx context.Context, contentID, userID uuid.UUID, at time.Time) (*simplefeed.ContentRecord, bool, error) {
	uid := userID.String()
	likes := bson.D{{Key: "$ifNull", Value: bson.A{"$likes", bson.A{}}}}

	// Pipeline update: membership is tested and flipped in the same
	// single-document write.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "likes", Value: bson.D{{Key: "$cond", Value: bson.D{
				{Key: "if", Value: bson.D{{Key: "$in", Value: bson.A{uid, likes}}}},
				{Key: "then", Value: bson.D{{Key: "$filter", Value: bson.D{
					{Key: "input", Value: likes},
					{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", uid}}}},
				}}}},
				{Key: "else", Value: bson.D{{Key: "$concatArrays", Value: bson.A{likes, bson.A{uid}}}}},
			}}}},
			{Key: "version", Value: bson.D{{Key: "$add", Value: bson.A{"$version", 1}}}},
			{Key: "updated_at", Value: at},
		}}},
	}

	rec, err := decodeRecord(r.contents().FindOneAndUpdate(ctx, bson.M{"_id": contentID.String()}, update, afterUpdate()))
	if err != nil {
		return nil, false, err
	}
	return rec, rec.LikedBy(userID), nil
}

func (r *Repository) AppendComment(ctx context.Context, contentID uuid.UUID, comment simplefeed.Comment) (*simplefeed.ContentRecord, error) {
	update := bson.M{
		"$push": bson.M{"comments": fromComment(comment)},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": comment.CreatedAt},
	}
	return decodeRecord(r.contents().FindOneAndUpdate(ctx, bson.M{"_id": contentID.String()}, update, afterUpdate()))
}

func (r *Repository) RemoveComment(ctx context.Context, contentID, commentID uuid.UUID, at time.Time) (*simplefeed.ContentRecord, error) {
	filter := bson.M{"_id": contentID.String(), "comments.id": commentID.String()}
	update := bson.M{
		"$pull": bson.M{"comments": bson.M{"id": commentID.String()}},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": at},
	}

	rec, err := decodeRecord(r.contents().FindOneAndUpdate(ctx, filter, update, afterUpdate()))
	if errors.Is(err, simplefeed.ErrContentNotFound) {
		return nil, r.missing(ctx, contentID, simplefeed.ErrCommentNotFound)
	}
	return rec, err
}

func (r *Repository) UpdateCaption(ctx context.Context, contentID uuid.UUID, caption string, expectedVersion *int64, at time.Time) (*simplefeed.ContentRecord, error) {
	filter := bson.M{"_id": contentID.String()}
	if expectedVersion != nil {
		filter["version"] = *expectedVersion
	}
	update := bson.M{
		"$set": bson.M{"caption": caption, "updated_at": at},
		"$inc": bson.M{"version": 1},
	}

	rec, err := decodeRecord(r.contents().FindOneAndUpdate(ctx, filter, update, afterUpdate()))
	if errors.Is(err, simplefeed.ErrContentNotFound) && expectedVersion != nil {
		return nil, r.missing(ctx, contentID, simplefeed.ErrConflict)
	}
	return rec, err
}

// missing explains a conditional update that matched nothing.
func (r *Repository) missing(ctx context.Context, contentID uuid.UUID, ifExists error) error {
	n, err := r.contents().CountDocuments(ctx, bson.M{"_id": contentID.String()}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check content: %w", err)
	}
	if n == 0 {
		return simplefeed.ErrContentNotFound
	}
	return ifExists
}

// Profile operations

func (r *Repository) UpsertProfile(ctx context.Context, profile *simplefeed.Profile) error {
	set := bson.M{"name": profile.Name, "updated_at": time.Now().UTC()}
	if profile.AvatarURL != "" {
		set["avatar_url"] = profile.AvatarURL
	}
	_, err := r.profiles().UpdateOne(ctx,
		bson.M{"_id": profile.ID.String()},
		bson.M{"$set": set},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *Repository) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*simplefeed.Profile, error) {
	result := make(map[uuid.UUID]*simplefeed.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	cursor, err := r.profiles().Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("failed to find profiles: %w", err)
	}
	var docs []profileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}

	for _, doc := range docs {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			continue
		}
		result[id] = &simplefeed.Profile{ID: id, Name: doc.Name, AvatarURL: doc.AvatarURL}
	}
	return result, nil
}
