package mongodb

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	domain "social-graph-service/internal/domain/user"
	pkgerrors "social-graph-service/pkg/errors"
	"social-graph-service/pkg/logger"
)

// UserCollection is the default collection name for user documents.
const UserCollection = "users"

// UserDocument is the stored shape of a user. Relation lists are arrays on the document.
type UserDocument struct {
	ID         string       `bson:"_id"`
	Username   string       `bson:"username"`
	Email      string       `bson:"email"`
	Bio        string       `bson:"bio,omitempty"`
	Avatar     string       `bson:"avatar,omitempty"`
	Credential string       `bson:"credential"`
	Followers  domain.IDSet `bson:"followers"`
	Following  domain.IDSet `bson:"following"`
	CreatedAt  time.Time    `bson:"created_at"`
	UpdatedAt  time.Time    `bson:"updated_at"`
}

func fromDomain(u *domain.User) UserDocument {
	return UserDocument{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Bio:        u.Bio,
		Avatar:     u.Avatar,
		Credential: u.Credential,
		Followers:  nonNil(u.Followers),
		Following:  nonNil(u.Following),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (d *UserDocument) toDomain() *domain.User {
	return &domain.User{
		ID:         d.ID,
		Username:   d.Username,
		Email:      d.Email,
		Bio:        d.Bio,
		Avatar:     d.Avatar,
		Credential: d.Credential,
		Followers:  nonNil(d.Followers),
		Following:  nonNil(d.Following),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func nonNil(s domain.IDSet) domain.IDSet {
	if s == nil {
		return domain.IDSet{}
	}
	return s
}

// UserRepoMongo implements the user repository and the follow Directory on MongoDB.
// Pair updates and cascade deletes run in multi-document transactions,
// which require a replica set or sharded cluster.
type UserRepoMongo struct {
	coll *mongo.Collection
	log  *zap.Logger
}

// NewUserRepoMongo creates a repository over coll.
func NewUserRepoMongo(coll *mongo.Collection, log *zap.Logger) *UserRepoMongo {
	return &UserRepoMongo{coll: coll, log: log}
}

// EnsureIndexes creates the unique username and email indexes.
func (r *UserRepoMongo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("username_1")},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_1")},
	})
	if err != nil {
		return pkgerrors.NewStoreError("ensure indexes", err)
	}
	return nil
}

// Create inserts a new user document.
func (r *UserRepoMongo) Create(ctx context.Context, u *domain.User) error {
	if u == nil {
		return pkgerrors.NewValidationError("user", "user cannot be nil")
	}

	if _, err := r.coll.InsertOne(ctx, fromDomain(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			field := duplicateField(err)
			r.logger(ctx).Warn("duplicate user", zap.String("field", field))
			return pkgerrors.NewAlreadyExistsError("user", field, fieldValue(u, field))
		}
		r.logger(ctx).Error("failed to insert user", zap.String("username", u.Username), zap.Error(err))
		return pkgerrors.NewStoreError("create user", err)
	}

	r.logger(ctx).Info("user inserted", zap.String("id", u.ID))
	return nil
}

// Update sets the profile fields of u, leaving relation arrays alone.
func (r *UserRepoMongo) Update(ctx context.Context, u *domain.User) error {
	if u == nil {
		return pkgerrors.NewValidationError("user", "user cannot be nil")
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
		"username":   u.Username,
		"email":      u.Email,
		"bio":        u.Bio,
		"avatar":     u.Avatar,
		"updated_at": u.UpdatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			field := duplicateField(err)
			return pkgerrors.NewAlreadyExistsError("user", field, fieldValue(u, field))
		}
		r.logger(ctx).Error("failed to update user", zap.String("id", u.ID), zap.Error(err))
		return pkgerrors.NewStoreError("update user", err)
	}
	if res.MatchedCount == 0 {
		return pkgerrors.NewNotFoundError("user", u.ID)
	}
	return nil
}

// GetByID retrieves a user document by id.
func (r *UserRepoMongo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "get user", "_id", id)
}

// GetByUsername retrieves a user document by exact username.
func (r *UserRepoMongo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "get user by username", "username", username)
}

// GetByEmail retrieves a user document by exact email.
func (r *UserRepoMongo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "get user by email", "email", email)
}

func (r *UserRepoMongo) findOne(ctx context.Context, op, key, value string) (*domain.User, error) {
	var doc UserDocument
	if err := r.coll.FindOne(ctx, bson.M{key: value}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if key == "_id" {
				return nil, pkgerrors.NewNotFoundError("user", value)
			}
			return nil, pkgerrors.NewNotFoundError("user", "")
		}
		r.logger(ctx).Error("failed to find user", zap.String("op", op), zap.Error(err))
		return nil, pkgerrors.NewStoreError(op, err)
	}
	return doc.toDomain(), nil
}

// GetByIDs returns the documents that exist among ids.
func (r *UserRepoMongo) GetByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}

	docs, err := r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		r.logger(ctx).Error("failed to find users", zap.Int("count", len(ids)), zap.Error(err))
		return nil, pkgerrors.NewStoreError("get users", err)
	}

	users := make([]domain.User, len(docs))
	for i := range docs {
		users[i] = *docs[i].toDomain()
	}
	return users, nil
}

// Search matches usernames containing query, case-insensitively.
// Regex metacharacters in query match literally.
func (r *UserRepoMongo) Search(ctx context.Context, query string, page, limit int64) ([]domain.User, int64, error) {
	filter := bson.M{"username": primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}}
	pagination := domain.NewPagination(0, page, limit)

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		r.logger(ctx).Error("failed to count users", zap.String("query", query), zap.Error(err))
		return nil, 0, pkgerrors.NewStoreError("search users", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetSkip(pagination.Offset()).
		SetLimit(limit)
	docs, err := r.find(ctx, filter, opts)
	if err != nil {
		r.logger(ctx).Error("failed to search users", zap.String("query", query), zap.Error(err))
		return nil, 0, pkgerrors.NewStoreError("search users", err)
	}

	users := make([]domain.User, len(docs))
	for i := range docs {
		users[i] = *docs[i].toDomain()
	}
	return users, total, nil
}

func (r *UserRepoMongo) find(ctx context.Context, filter any, opts ...*options.FindOptions) ([]UserDocument, error) {
	cursor, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdatePair loads both documents in a transaction, applies fn and writes
// both relation arrays. Write conflicts with a concurrent transaction are
// retried by the driver, which re-runs fn on fresh documents.
func (r *UserRepoMongo) UpdatePair(ctx context.Context, actorID, targetID string, fn domain.PairMutation) error {
	_, err := r.transaction(ctx, "update pair", func(sc mongo.SessionContext) (any, error) {
		docs, err := r.find(sc, bson.M{"_id": bson.M{"$in": []string{actorID, targetID}}})
		if err != nil {
			return nil, pkgerrors.NewStoreError("update pair", err)
		}

		byID := make(map[string]*domain.User, len(docs))
		for i := range docs {
			byID[docs[i].ID] = docs[i].toDomain()
		}
		actor, ok := byID[actorID]
		if !ok {
			return nil, pkgerrors.NewNotFoundError("user", actorID)
		}
		target, ok := byID[targetID]
		if !ok {
			return nil, pkgerrors.NewNotFoundError("user", targetID)
		}

		if err := fn(actor, target); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		for _, u := range []*domain.User{actor, target} {
			_, err := r.coll.UpdateOne(sc, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
				"followers":  nonNil(u.Followers),
				"following":  nonNil(u.Following),
				"updated_at": now,
			}})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// DeleteCascade removes the user document and pulls its id from every
// neighbour's relation arrays in one transaction.
func (r *UserRepoMongo) DeleteCascade(ctx context.Context, id string) ([]string, error) {
	res, err := r.transaction(ctx, "delete cascade", func(sc mongo.SessionContext) (any, error) {
		var doc UserDocument
		if err := r.coll.FindOne(sc, bson.M{"_id": id}).Decode(&doc); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, pkgerrors.NewNotFoundError("user", id)
			}
			return nil, err
		}

		neighbours := doc.toDomain().Neighbours()
		if len(neighbours) > 0 {
			_, err := r.coll.UpdateMany(sc,
				bson.M{"_id": bson.M{"$in": neighbours}},
				bson.M{
					"$pull": bson.M{"followers": id, "following": id},
					"$set":  bson.M{"updated_at": time.Now().UTC()},
				},
			)
			if err != nil {
				return nil, err
			}
		}

		if _, err := r.coll.DeleteOne(sc, bson.M{"_id": id}); err != nil {
			return nil, err
		}
		return neighbours, nil
	})
	if err != nil {
		return nil, err
	}

	affected, _ := res.([]string)
	r.logger(ctx).Info("user deleted", zap.String("id", id), zap.Int("neighbours", len(affected)))
	return affected, nil
}

// transaction runs fn inside a session transaction with majority read and
// write concerns. Typed errors from fn are returned as they are; driver
// failures become StoreErrors.
func (r *UserRepoMongo) transaction(ctx context.Context, op string, fn func(mongo.SessionContext) (any, error)) (any, error) {
	sess, err := r.coll.Database().Client().StartSession()
	if err != nil {
		r.logger(ctx).Error("failed to start session", zap.String("op", op), zap.Error(err))
		return nil, pkgerrors.NewStoreError(op, err)
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	res, err := sess.WithTransaction(ctx, fn, opts)
	if err == nil {
		return res, nil
	}

	var typed pkgerrors.GRPCStatuser
	if errors.As(err, &typed) {
		if pkgerrors.IsStoreError(err) {
			r.logger(ctx).Error("transaction failed", zap.String("op", op), zap.Error(err))
		}
		return nil, err
	}
	r.logger(ctx).Error("transaction failed", zap.String("op", op), zap.Error(err))
	return nil, pkgerrors.NewStoreError(op, err)
}

func (r *UserRepoMongo) logger(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, r.log)
}

// duplicateField extracts the offending field from an E11000 message,
// e.g. "index: email_1 dup key".
func duplicateField(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "username"):
		return "username"
	case strings.Contains(msg, "email"):
		return "email"
	default:
		return "id"
	}
}

func fieldValue(u *domain.User, field string) string {
	switch field {
	case "username":
		return u.Username
	case "email":
		return u.Email
	default:
		return u.ID
	}
}
