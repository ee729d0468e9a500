package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/pkg/config"
	mongotx "roombook/pkg/db/mongo"
	"roombook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName      = "Bookings"
	GuardCollectionName = "RoomGuards"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	guards     *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config, client *mongo.Client) BookingRepository {
	db := client.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		guards:     db.Collection(GuardCollectionName),
		txManager:  mongotx.NewTransactionManager(client),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// A SessionContext cannot be wrapped without breaking transaction semantics.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return withTimeout(ctx, timeout)
}

func overlapFilter(iv model.Interval, statuses []model.BookingStatus, excludeID string) bson.M {
	filter := bson.M{
		"room_id":   iv.RoomID,
		"check_in":  bson.M{"$lt": iv.CheckOut},
		"check_out": bson.M{"$gt": iv.CheckIn},
		"status":    bson.M{"$in": statusStrings(statuses)},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

func (r *mongoBookingRepository) FindOverlapping(ctx context.Context, iv model.Interval, statuses []model.BookingStatus, excludeID string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "check_in", Value: 1}})
	return r.find(ctx, overlapFilter(iv, statuses, excludeID), opts)
}

// guardRoom bumps the room's guard document inside the transaction. Two
// transactions writing the same room then conflict, so the loser retries and
// sees the winner's booking in its overlap check.
func (r *mongoBookingRepository) guardRoom(sessCtx mongo.SessionContext, roomID int64) error {
	_, err := r.guards.UpdateOne(sessCtx,
		bson.M{"_id": roomID},
		bson.M{"$inc": bson.M{"version": 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to guard room %d: %w", roomID, err)
	}
	return nil
}

func (r *mongoBookingRepository) Persist(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}

	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := r.guardRoom(sessCtx, booking.RoomID); err != nil {
			return err
		}

		if booking.Status.IsActive() {
			n, err := r.collection.CountDocuments(sessCtx, overlapFilter(booking.Interval(), model.ActiveStatuses, ""))
			if err != nil {
				return fmt.Errorf("failed to check overlapping bookings: %w", err)
			}
			if n > 0 {
				return bookingserrors.ErrUnavailable
			}
		}

		if _, err := r.collection.InsertOne(sessCtx, booking); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		return nil
	})
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := checkID(id); err != nil {
		return nil, err
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return normalize(&booking), nil
}

func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, id string, from model.BookingStatus, change model.StatusChange) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := checkID(id); err != nil {
		return nil, err
	}

	set := bson.M{
		"status":            change.To,
		"status_updated_at": change.At,
		"status_updated_by": change.Actor,
		"updated_at":        change.At,
	}
	if change.PaymentStatus != "" {
		set["payment_status"] = change.PaymentStatus
	}
	if change.Note != "" {
		set["admin_note"] = change.Note
	}

	return r.compareAndSet(ctx, id, from, set)
}

func (r *mongoBookingRepository) UpdateDetails(ctx context.Context, id string, from model.BookingStatus, change model.DetailsChange) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := checkID(id); err != nil {
		return nil, err
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"check_in":         change.CheckIn,
		"check_out":        change.CheckOut,
		"guests":           change.Guests,
		"special_requests": change.SpecialRequests,
		"total_price":      change.TotalPrice,
		"updated_at":       change.At,
	}

	var updated *model.Booking
	err = r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := r.guardRoom(sessCtx, current.RoomID); err != nil {
			return err
		}

		iv := model.Interval{RoomID: current.RoomID, CheckIn: change.CheckIn, CheckOut: change.CheckOut}
		n, err := r.collection.CountDocuments(sessCtx, overlapFilter(iv, model.ActiveStatuses, id))
		if err != nil {
			return fmt.Errorf("failed to check overlapping bookings: %w", err)
		}
		if n > 0 {
			return bookingserrors.ErrUnavailable
		}

		updated, err = r.compareAndSet(sessCtx, id, from, set)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *mongoBookingRepository) compareAndSet(ctx context.Context, id string, from model.BookingStatus, set bson.M) (*model.Booking, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set}, opts).Decode(&booking)
	if err == nil {
		return normalize(&booking), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to check booking existence: %w", err)
	}
	if n == 0 {
		return nil, bookingserrors.ErrNotFound
	}
	return nil, bookingserrors.ErrStatusChanged
}

func (r *mongoBookingRepository) FindExpiredPending(ctx context.Context, cutoff time.Time) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":       model.StatusPending,
		"auto_confirm": false,
		"created_at":   bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(500)
	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) FindPendingAutoConfirm(ctx context.Context) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"status": model.StatusPending, "auto_confirm": true}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) Find(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	return r.find(ctx, buildFilter(filter), opts)
}

func (r *mongoBookingRepository) Count(ctx context.Context, filter model.BookingFilter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) Stats(ctx context.Context, since time.Time) (*model.BookingStats, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	stats := &model.BookingStats{ByStatus: make(map[model.BookingStatus]int64)}

	byStatus, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate booking statuses: %w", err)
	}
	var statusRows []struct {
		Status model.BookingStatus `bson:"_id"`
		Count  int64               `bson:"count"`
	}
	if err := byStatus.All(ctx, &statusRows); err != nil {
		return nil, fmt.Errorf("failed to decode status counts: %w", err)
	}
	for _, row := range statusRows {
		stats.ByStatus[row.Status] = row.Count
		stats.Total += row.Count
	}

	monthly, err := r.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m"},
				{Key: "date", Value: "$created_at"},
			}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$in", Value: bson.A{"$status", bson.A{model.StatusConfirmed, model.StatusCompleted}}}},
				"$total_price",
				0,
			}}}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly bookings: %w", err)
	}
	var monthRows []struct {
		Month   string  `bson:"_id"`
		Count   int64   `bson:"count"`
		Revenue float64 `bson:"revenue"`
	}
	if err := monthly.All(ctx, &monthRows); err != nil {
		return nil, fmt.Errorf("failed to decode monthly stats: %w", err)
	}
	for _, row := range monthRows {
		stats.Monthly = append(stats.Monthly, model.MonthlyStat{Month: row.Month, Count: row.Count, Revenue: row.Revenue})
	}

	return stats, nil
}

func (r *mongoBookingRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	for _, b := range bookings {
		normalize(b)
	}
	return bookings, nil
}

func buildFilter(f model.BookingFilter) bson.M {
	filter := bson.M{}
	if f.UserID != nil {
		filter["user_id"] = *f.UserID
	}
	if f.RoomID != nil {
		filter["room_id"] = *f.RoomID
	}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	if f.From != nil || f.To != nil {
		checkIn := bson.M{}
		if f.From != nil {
			checkIn["$gte"] = *f.From
		}
		if f.To != nil {
			checkIn["$lte"] = *f.To
		}
		filter["check_in"] = checkIn
	}
	if f.CreatedAfter != nil {
		filter["created_at"] = bson.M{"$gte": *f.CreatedAfter}
	}
	return filter
}

// normalize puts decoded timestamps back in UTC; the driver decodes to local time.
func normalize(b *model.Booking) *model.Booking {
	b.CheckIn = b.CheckIn.UTC()
	b.CheckOut = b.CheckOut.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	if b.StatusUpdatedAt != nil {
		t := b.StatusUpdatedAt.UTC()
		b.StatusUpdatedAt = &t
	}
	return b
}
