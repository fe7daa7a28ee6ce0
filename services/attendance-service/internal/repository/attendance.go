package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
)

// AttendanceRepository defines the interface for attendance record storage.
// Records are never deleted.
type AttendanceRepository interface {
	CreateRecord(ctx context.Context, record *model.AttendanceRecord) (*model.AttendanceRecord, error)
	GetRecord(ctx context.Context, id string) (*model.AttendanceRecord, error)
	UpdateRecordStatus(ctx context.Context, id string, params UpdateRecordParams) (*model.AttendanceRecord, error)
	ListRecordsByDate(ctx context.Context, date string) ([]*model.AttendanceRecord, error)
	ListRecordsByStudent(ctx context.Context, studentID string) ([]*model.AttendanceRecord, error)
}

// UpdateRecordParams sets the status and, when TimeIn is not nil, overwrites the time in.
type UpdateRecordParams struct {
	Status string
	TimeIn *string
}

const attendanceCollection = "attendance"

type attendanceMongoRepository struct {
	db *mongo.Database
}

// NewAttendanceMongoRepository creates an AttendanceRepository on the attendance collection
// and ensures its indexes.
func NewAttendanceMongoRepository(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) AttendanceRepository {
	collection := db.Collection(attendanceCollection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "date", Value: 1}}},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create attendance indexes")
	}

	return &attendanceMongoRepository{db: db}
}

func (r *attendanceMongoRepository) CreateRecord(
	ctx context.Context,
	record *model.AttendanceRecord,
) (*model.AttendanceRecord, error) {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := r.db.Collection(attendanceCollection).InsertOne(ctx, record)
	if err != nil {
		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		record.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return record, nil
}

func (r *attendanceMongoRepository) GetRecord(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, mongo.ErrNoDocuments
	}

	result := r.db.Collection(attendanceCollection).FindOne(ctx, bson.M{"_id": objectID})
	if result.Err() != nil {
		return nil, result.Err()
	}

	var record model.AttendanceRecord
	if err := result.Decode(&record); err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *attendanceMongoRepository) UpdateRecordStatus(
	ctx context.Context,
	id string,
	params UpdateRecordParams,
) (*model.AttendanceRecord, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, mongo.ErrNoDocuments
	}

	updateMap := bson.M{
		"status":     params.Status,
		"updated_at": time.Now(),
	}
	if params.TimeIn != nil {
		updateMap["time_in"] = *params.TimeIn
	}

	result := r.db.Collection(attendanceCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": updateMap},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if result.Err() != nil {
		return nil, result.Err()
	}

	var record model.AttendanceRecord
	if err := result.Decode(&record); err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *attendanceMongoRepository) ListRecordsByDate(
	ctx context.Context,
	date string,
) ([]*model.AttendanceRecord, error) {
	return r.find(ctx, bson.M{"date": date})
}

func (r *attendanceMongoRepository) ListRecordsByStudent(
	ctx context.Context,
	studentID string,
) ([]*model.AttendanceRecord, error) {
	return r.find(ctx, bson.M{"student_id": studentID})
}

func (r *attendanceMongoRepository) find(ctx context.Context, filter bson.M) ([]*model.AttendanceRecord, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.db.Collection(attendanceCollection).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []*model.AttendanceRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	return records, nil
}
