package postgres

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "social-graph-service/internal/domain/user"
	pkgerrors "social-graph-service/pkg/errors"
	"social-graph-service/pkg/logger"
	"social-graph-service/pkg/security"
)

const pgUniqueViolation = "23505"

// UserRepoPG stores user records, relation lists included, through GORM.
// It runs on PostgreSQL in production and on SQLite in tests and local setups.
type UserRepoPG struct {
	db  *gorm.DB    // GORM database connection
	log *zap.Logger // Structured logger for database operations
}

// NewUserRepoPG creates a new instance of UserRepoPG.
func NewUserRepoPG(db *gorm.DB, log *zap.Logger) *UserRepoPG {
	return &UserRepoPG{db: db, log: log}
}

// UserSchema represents the database schema for the users table.
// Relation lists are stored as JSON arrays on the row.
type UserSchema struct {
	ID         string       `gorm:"primaryKey;type:varchar(36)"`
	Username   string       `gorm:"not null;size:30;uniqueIndex:idx_users_username"`
	Email      string       `gorm:"not null;size:255;uniqueIndex:idx_users_email"`
	Bio        string       `gorm:"size:280"`
	Avatar     string       `gorm:"size:512"`
	Credential string       `gorm:"not null"`
	Followers  domain.IDSet `gorm:"type:text;serializer:json"`
	Following  domain.IDSet `gorm:"type:text;serializer:json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName specifies the table name for the UserSchema model.
func (UserSchema) TableName() string {
	return "users"
}

// Migrate creates or updates the users table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserSchema{})
}

func toSchema(u *domain.User) UserSchema {
	return UserSchema{
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

func (m *UserSchema) toDomain() *domain.User {
	return &domain.User{
		ID:         m.ID,
		Username:   m.Username,
		Email:      m.Email,
		Bio:        m.Bio,
		Avatar:     m.Avatar,
		Credential: m.Credential,
		Followers:  nonNil(m.Followers),
		Following:  nonNil(m.Following),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func nonNil(s domain.IDSet) domain.IDSet {
	if s == nil {
		return domain.IDSet{}
	}
	return s
}

// Create inserts a new user into the database.
func (r *UserRepoPG) Create(ctx context.Context, u *domain.User) error {
	if u == nil {
		return pkgerrors.NewValidationError("user", "user cannot be nil")
	}

	model := toSchema(u)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if field, ok := duplicateField(err); ok {
			r.logger(ctx).Warn("duplicate user", zap.String("field", field))
			return pkgerrors.NewAlreadyExistsError("user", field, fieldValue(u, field))
		}
		r.logger(ctx).Error("failed to create user in db", zap.Error(err), zap.String("username", u.Username))
		return pkgerrors.NewStoreError("create user", err)
	}

	r.logger(ctx).Info("user created in db", zap.String("id", model.ID))
	return nil
}

// Update writes the profile fields of u. Relation lists are not touched.
func (r *UserRepoPG) Update(ctx context.Context, u *domain.User) error {
	if u == nil {
		return pkgerrors.NewValidationError("user", "user cannot be nil")
	}

	res := r.db.WithContext(ctx).
		Model(&UserSchema{ID: u.ID}).
		Select("Username", "Email", "Bio", "Avatar", "UpdatedAt").
		Updates(&UserSchema{
			Username:  u.Username,
			Email:     u.Email,
			Bio:       u.Bio,
			Avatar:    u.Avatar,
			UpdatedAt: u.UpdatedAt,
		})
	if err := res.Error; err != nil {
		if field, ok := duplicateField(err); ok {
			return pkgerrors.NewAlreadyExistsError("user", field, fieldValue(u, field))
		}
		r.logger(ctx).Error("failed to update user in db", zap.Error(err), zap.String("id", u.ID))
		return pkgerrors.NewStoreError("update user", err)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.NewNotFoundError("user", u.ID)
	}

	r.logger(ctx).Info("user updated in db", zap.String("id", u.ID))
	return nil
}

// GetByID retrieves a user from the database by their unique ID.
func (r *UserRepoPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "get user", "id", id)
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepoPG) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.first(ctx, "get user by username", "username", username)
}

// GetByEmail retrieves a user from the database by their email address.
func (r *UserRepoPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "get user by email", "email", email)
}

func (r *UserRepoPG) first(ctx context.Context, op, column, value string) (*domain.User, error) {
	var model UserSchema
	if err := r.db.WithContext(ctx).Where(column+" = ?", value).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger(ctx).Debug("user not found", zap.String(column, value))
			if column == "id" {
				return nil, pkgerrors.NewNotFoundError("user", value)
			}
			return nil, pkgerrors.NewNotFoundError("user", "")
		}
		r.logger(ctx).Error("failed to get user from db", zap.String("op", op), zap.Error(err))
		return nil, pkgerrors.NewStoreError(op, err)
	}
	return model.toDomain(), nil
}

// GetByIDs returns the records that exist among ids.
func (r *UserRepoPG) GetByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}

	var models []UserSchema
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		r.logger(ctx).Error("failed to get users from db", zap.Int("count", len(ids)), zap.Error(err))
		return nil, pkgerrors.NewStoreError("get users", err)
	}

	users := make([]domain.User, len(models))
	for i := range models {
		users[i] = *models[i].toDomain()
	}
	return users, nil
}

// Search finds users whose username contains query, ignoring case.
// LIKE wildcards in query match literally.
func (r *UserRepoPG) Search(ctx context.Context, query string, page, limit int64) ([]domain.User, int64, error) {
	pagination := domain.NewPagination(0, page, limit)
	scope := r.db.WithContext(ctx).
		Model(&UserSchema{}).
		Where(`LOWER(username) LIKE ? ESCAPE '\'`, security.LikePattern(query)).
		Session(&gorm.Session{})

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		r.logger(ctx).Error("failed to count users", zap.String("query", query), zap.Error(err))
		return nil, 0, pkgerrors.NewStoreError("search users", err)
	}

	var models []UserSchema
	if err := scope.Order("username").Offset(int(pagination.Offset())).Limit(int(limit)).Find(&models).Error; err != nil {
		r.logger(ctx).Error("failed to search users", zap.String("query", query), zap.Int64("page", page), zap.Int64("limit", limit), zap.Error(err))
		return nil, 0, pkgerrors.NewStoreError("search users", err)
	}

	users := make([]domain.User, len(models))
	for i := range models {
		users[i] = *models[i].toDomain()
	}
	return users, total, nil
}

// UpdatePair loads actor and target inside one transaction, applies fn and
// writes both relation lists back. On PostgreSQL the two rows are locked
// in id order so concurrent updates on overlapping pairs cannot deadlock.
func (r *UserRepoPG) UpdatePair(ctx context.Context, actorID, targetID string, fn domain.PairMutation) error {
	return r.transaction(ctx, "update pair", func(tx *gorm.DB) error {
		rows, err := r.lockRows(tx, []string{actorID, targetID})
		if err != nil {
			return pkgerrors.NewStoreError("update pair", err)
		}

		actor, ok := rows[actorID]
		if !ok {
			return pkgerrors.NewNotFoundError("user", actorID)
		}
		target, ok := rows[targetID]
		if !ok {
			return pkgerrors.NewNotFoundError("user", targetID)
		}

		a, t := actor.toDomain(), target.toDomain()
		if err := fn(a, t); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, u := range []*domain.User{a, t} {
			if err := saveRelations(tx, u, now); err != nil {
				return pkgerrors.NewStoreError("update pair", err)
			}
		}
		return nil
	})
}

// maxCascadeAttempts bounds how often DeleteCascade restarts when the
// neighbour set grows between its read and its lock.
const maxCascadeAttempts = 5

// neighboursChangedError aborts a cascade attempt whose locked row lists
// neighbours that were not part of the lock set.
type neighboursChangedError struct {
	late []string
}

func (e *neighboursChangedError) Error() string {
	return "neighbour set changed before lock"
}

// DeleteCascade deletes the user and strips its id from every neighbour
// in the same transaction. It returns the ids of the rewritten records.
//
// All rows are locked in a single id-ordered pass. If the deleted row gained
// neighbours between the first read and the lock, the transaction is rolled
// back and retried with the merged id set.
func (r *UserRepoPG) DeleteCascade(ctx context.Context, id string) ([]string, error) {
	var known []string
	for attempt := 1; attempt <= maxCascadeAttempts; attempt++ {
		affected, err := r.deleteCascade(ctx, id, known)
		var changed *neighboursChangedError
		if !errors.As(err, &changed) {
			if err != nil {
				return nil, err
			}
			r.logger(ctx).Info("user deleted in db", zap.String("id", id), zap.Int("neighbours", len(affected)))
			return affected, nil
		}

		r.logger(ctx).Debug("neighbours changed during cascade, retrying",
			zap.String("id", id), zap.Strings("late", changed.late), zap.Int("attempt", attempt))
		known = append(known, changed.late...)
	}

	err := pkgerrors.NewStoreError("delete cascade", errors.New("neighbour set kept changing"))
	r.logger(ctx).Error("transaction failed", zap.String("op", "delete cascade"), zap.Error(err))
	return nil, err
}

func (r *UserRepoPG) deleteCascade(ctx context.Context, id string, known []string) ([]string, error) {
	var affected []string
	err := r.transaction(ctx, "delete cascade", func(tx *gorm.DB) error {
		var current UserSchema
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.NewNotFoundError("user", id)
			}
			return pkgerrors.NewStoreError("delete cascade", err)
		}

		lockIDs := append(append(current.toDomain().Neighbours(), known...), id)
		rows, err := r.lockRows(tx, lockIDs)
		if err != nil {
			return pkgerrors.NewStoreError("delete cascade", err)
		}
		deleted, ok := rows[id]
		if !ok {
			return pkgerrors.NewNotFoundError("user", id)
		}

		locked := make(map[string]bool, len(lockIDs))
		for _, lid := range lockIDs {
			locked[lid] = true
		}
		neighbours := deleted.toDomain().Neighbours()
		var late []string
		for _, nid := range neighbours {
			if !locked[nid] {
				late = append(late, nid)
			}
		}
		if len(late) > 0 {
			return &neighboursChangedError{late: late}
		}

		now := time.Now().UTC()
		for _, nid := range neighbours {
			row, ok := rows[nid]
			if !ok {
				continue
			}
			n := row.toDomain()
			n.Followers, _ = n.Followers.Remove(id)
			n.Following, _ = n.Following.Remove(id)
			if err := saveRelations(tx, n, now); err != nil {
				return pkgerrors.NewStoreError("delete cascade", err)
			}
			affected = append(affected, nid)
		}

		if err := tx.Delete(&UserSchema{}, "id = ?", id).Error; err != nil {
			return pkgerrors.NewStoreError("delete cascade", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// lockRows selects the given rows, taking row locks on PostgreSQL.
// SQLite serializes writers on its own and has no FOR UPDATE.
func (r *UserRepoPG) lockRows(tx *gorm.DB, ids []string) (map[string]*UserSchema, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	q := tx.Where("id IN ?", sorted).Order("id")
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var models []UserSchema
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	rows := make(map[string]*UserSchema, len(models))
	for i := range models {
		rows[models[i].ID] = &models[i]
	}
	return rows, nil
}

func saveRelations(tx *gorm.DB, u *domain.User, now time.Time) error {
	return tx.Model(&UserSchema{ID: u.ID}).
		Select("Followers", "Following", "UpdatedAt").
		Updates(&UserSchema{
			Followers: nonNil(u.Followers),
			Following: nonNil(u.Following),
			UpdatedAt: now,
		}).Error
}

// transaction runs fn in a database transaction. Typed errors from fn pass
// through unchanged; anything else (commit failures) becomes a StoreError.
func (r *UserRepoPG) transaction(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}

	var changed *neighboursChangedError
	if errors.As(err, &changed) {
		return err
	}

	var typed pkgerrors.GRPCStatuser
	if errors.As(err, &typed) {
		if pkgerrors.IsStoreError(err) {
			r.logger(ctx).Error("transaction failed", zap.String("op", op), zap.Error(err))
		}
		return err
	}
	r.logger(ctx).Error("transaction failed", zap.String("op", op), zap.Error(err))
	return pkgerrors.NewStoreError(op, err)
}

func (r *UserRepoPG) logger(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, r.log)
}

// duplicateField reports whether err is a unique violation and which
// column caused it, for both PostgreSQL and SQLite.
func duplicateField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", false
		}
		return columnFromText(pgErr.ConstraintName), true
	}

	msg := err.Error()
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(msg, "UNIQUE constraint failed") {
		return columnFromText(msg), true
	}
	return "", false
}

func columnFromText(s string) string {
	switch {
	case strings.Contains(s, "username"):
		return "username"
	case strings.Contains(s, "email"):
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
