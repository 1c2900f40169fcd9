// internal/app/store/attendance/attendancestore.go
package attendancestore

import (
	"context"
	"errors"
	"time"

	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errBadStatus = errors.New(`status must be "present"|"absent"|"late"`)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("attendance")}
}

// Record upserts the mark for (student, class, day). Date is truncated to
// midnight UTC so re-marking the same day overwrites.
func (s *Store) Record(ctx context.Context, a models.Attendance) (models.Attendance, error) {
	switch a.Status {
	case models.AttendancePresent, models.AttendanceAbsent, models.AttendanceLate:
	default:
		return models.Attendance{}, errBadStatus
	}
	a.Date = a.Date.UTC().Truncate(24 * time.Hour)

	filter := bson.M{"student_id": a.StudentID, "class_id": a.ClassID, "date": a.Date}
	update := bson.M{
		"$set":         bson.M{"status": a.Status, "recorded_by": a.RecordedBy},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.Attendance
	if err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return models.Attendance{}, err
	}
	return out, nil
}

// ListVisible returns marks for any of studentIDs or in any of classIDs, newest first.
func (s *Store) ListVisible(ctx context.Context, studentIDs, classIDs []primitive.ObjectID) ([]models.Attendance, error) {
	var or bson.A
	if len(studentIDs) > 0 {
		or = append(or, bson.M{"student_id": bson.M{"$in": studentIDs}})
	}
	if len(classIDs) > 0 {
		or = append(or, bson.M{"class_id": bson.M{"$in": classIDs}})
	}
	if len(or) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"$or": or}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Attendance
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
