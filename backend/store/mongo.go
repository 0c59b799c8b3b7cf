package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"habithop/backend/tracker"
)

const (
	habitsCollection     = "habits"
	logsCollection       = "habit_logs"
	streaksCollection    = "streaks"
	statisticsCollection = "statistics"
	remindersCollection  = "reminders"
)

// MongoStore keeps habits as documents. Field names follow the document
// layout of the hosted store the app was first written against.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *log.Logger
}

type habitDoc struct {
	ID            string                 `bson:"_id"`
	OwnerID       string                 `bson:"userId"`
	Name          string                 `bson:"name"`
	Frequency     string                 `bson:"frequency"`
	TargetCount   int                    `bson:"targetCount"`
	Completions   map[string]int         `bson:"completions"`
	LastCompleted *tracker.LastCompleted `bson:"lastCompleted"`
	IsActive      bool                   `bson:"isActive"`
	CreatedAt     time.Time              `bson:"createdAt"`
	UpdatedAt     time.Time              `bson:"updatedAt"`
}

type logDoc struct {
	ID       string    `bson:"_id"`
	HabitID  string    `bson:"habitId"`
	LogDate  time.Time `bson:"logDate"`
	Notes    string    `bson:"notes,omitempty"`
	LoggedAt time.Time `bson:"loggedAt"`
}

type streakDoc struct {
	HabitID        string     `bson:"_id"`
	CurrentStreak  int        `bson:"currentStreak"`
	LongestStreak  int        `bson:"longestStreak"`
	LastLoggedDate *time.Time `bson:"lastLoggedDate"`
}

type statisticsDoc struct {
	HabitID          string    `bson:"_id"`
	TotalCompletions int       `bson:"totalCompletions"`
	AveragePerWeek   float64   `bson:"averagePerWeek"`
	LastUpdated      time.Time `bson:"lastUpdated"`
}

type reminderDoc struct {
	ID           string    `bson:"_id"`
	HabitID      string    `bson:"habitId"`
	ReminderTime string    `bson:"reminderTime"`
	ReminderDays []string  `bson:"reminderDays"`
	IsActive     bool      `bson:"isActive"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// ConnectMongo dials uri, checks the connection and ensures indexes.
func ConnectMongo(ctx context.Context, uri, database string, logger *log.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database), logger: logger}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(habitsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create habit index: %w", err)
	}
	for _, coll := range []string{logsCollection, remindersCollection} {
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "habitId", Value: 1}},
		}); err != nil {
			return fmt.Errorf("create %s index: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) habits() *mongo.Collection {
	return s.db.Collection(habitsCollection)
}

func (s *MongoStore) CreateHabit(ctx context.Context, h tracker.Habit) (tracker.Habit, error) {
	now := time.Now()
	doc := habitDoc{
		ID:            h.ID,
		OwnerID:       h.OwnerID,
		Name:          h.Name,
		Frequency:     string(h.Frequency),
		TargetCount:   h.TargetCount,
		Completions:   nonNil(h.Completions),
		LastCompleted: h.LastCompleted,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, err := s.habits().InsertOne(ctx, doc); err != nil {
		return tracker.Habit{}, fmt.Errorf("create habit: %w", err)
	}
	return habitFromDoc(doc)
}

func (s *MongoStore) ListHabits(ctx context.Context, ownerID string, includeInactive bool) ([]tracker.Habit, error) {
	filter := bson.M{"userId": ownerID}
	if !includeInactive {
		filter["isActive"] = true
	}

	cur, err := s.habits().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer cur.Close(ctx)

	habits := []tracker.Habit{}
	for cur.Next(ctx) {
		var doc habitDoc
		if err := cur.Decode(&doc); err != nil {
			s.logger.Warn("skipping habit document", "error", err)
			continue
		}
		h, err := habitFromDoc(doc)
		if err != nil {
			s.logger.Warn("skipping habit document", "id", doc.ID, "error", err)
			continue
		}
		habits = append(habits, h)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

func (s *MongoStore) GetHabit(ctx context.Context, ownerID, id string) (tracker.Habit, error) {
	var doc habitDoc
	err := s.habits().FindOne(ctx, bson.M{"_id": id, "userId": ownerID}).Decode(&doc)
	if err != nil {
		return tracker.Habit{}, mongoErr("get habit", err)
	}
	return habitFromDoc(doc)
}

func (s *MongoStore) UpdateHabit(ctx context.Context, ownerID, id string, changes HabitChanges) (tracker.Habit, error) {
	set := bson.M{}
	if changes.Name != nil {
		set["name"] = *changes.Name
	}
	if changes.Frequency != nil {
		set["frequency"] = string(*changes.Frequency)
	}
	if changes.TargetCount != nil {
		set["targetCount"] = *changes.TargetCount
	}

	update := bson.M{"$currentDate": bson.M{"updatedAt": true}}
	if len(set) > 0 {
		update["$set"] = set
	}

	var doc habitDoc
	err := s.habits().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "userId": ownerID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return tracker.Habit{}, mongoErr("update habit", err)
	}
	return habitFromDoc(doc)
}

func (s *MongoStore) SetActive(ctx context.Context, ownerID, id string, active bool) error {
	res, err := s.habits().UpdateOne(ctx,
		bson.M{"_id": id, "userId": ownerID},
		bson.M{"$set": bson.M{"isActive": active}, "$currentDate": bson.M{"updatedAt": true}},
	)
	if err != nil {
		return fmt.Errorf("set habit active=%t: %w", active, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHabit removes the dependents before the habit itself, so a failure
// part way leaves the habit in place and the delete can be retried.
func (s *MongoStore) DeleteHabit(ctx context.Context, ownerID, id string) error {
	n, err := s.habits().CountDocuments(ctx, bson.M{"_id": id, "userId": ownerID})
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := s.db.Collection(logsCollection).DeleteMany(ctx, bson.M{"habitId": id}); err != nil {
		return fmt.Errorf("delete habit logs: %w", err)
	}
	if _, err := s.db.Collection(remindersCollection).DeleteMany(ctx, bson.M{"habitId": id}); err != nil {
		return fmt.Errorf("delete habit reminders: %w", err)
	}
	if _, err := s.db.Collection(streaksCollection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete habit streak: %w", err)
	}
	if _, err := s.db.Collection(statisticsCollection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete habit statistics: %w", err)
	}

	res, err := s.habits().DeleteOne(ctx, bson.M{"_id": id, "userId": ownerID})
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordCompletion increments today's count in place so concurrent events
// never overwrite each other, then stamps lastCompleted from the
// post-increment count. The stamp only lands when it is newer than the stored
// one: a later date, or the same date with a higher count.
func (s *MongoStore) RecordCompletion(ctx context.Context, ownerID, id string, now time.Time) (tracker.Habit, error) {
	key := tracker.DateKey(now)

	var doc habitDoc
	err := s.habits().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "userId": ownerID, "isActive": true},
		bson.M{
			"$inc":         bson.M{"completions." + key: 1},
			"$currentDate": bson.M{"updatedAt": true},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return tracker.Habit{}, mongoErr("record completion", err)
	}

	h, err := habitFromDoc(doc)
	if err != nil {
		return tracker.Habit{}, err
	}

	lc := tracker.CompletionEvent(h.Frequency, now, h.Completions[key])
	res, err := s.habits().UpdateOne(ctx,
		bson.M{
			"_id":    id,
			"userId": ownerID,
			"$or": bson.A{
				bson.M{"lastCompleted": nil},
				bson.M{"lastCompleted.date": bson.M{"$lt": key}},
				bson.M{"lastCompleted.date": key, "lastCompleted.count": bson.M{"$lt": lc.Count}},
			},
		},
		bson.M{"$set": bson.M{"lastCompleted": lc}},
	)
	if err != nil {
		return tracker.Habit{}, fmt.Errorf("record completion: %w", err)
	}
	if res.MatchedCount == 0 {
		// a newer event already stamped lastCompleted
		return s.GetHabit(ctx, ownerID, id)
	}

	h.LastCompleted = &lc
	return h, nil
}

func (s *MongoStore) AddLog(ctx context.Context, l Log) (Log, error) {
	doc := logDoc{
		ID:       l.ID,
		HabitID:  l.HabitID,
		LogDate:  l.LogDate,
		Notes:    l.Notes,
		LoggedAt: time.Now(),
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, err := s.db.Collection(logsCollection).InsertOne(ctx, doc); err != nil {
		return Log{}, fmt.Errorf("add habit log: %w", err)
	}
	return Log(doc), nil
}

func (s *MongoStore) ListLogs(ctx context.Context, habitID string) ([]Log, error) {
	cur, err := s.db.Collection(logsCollection).Find(ctx,
		bson.M{"habitId": habitID},
		options.Find().SetSort(bson.D{{Key: "logDate", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list habit logs: %w", err)
	}

	var docs []logDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list habit logs: %w", err)
	}
	logs := make([]Log, len(docs))
	for i, doc := range docs {
		logs[i] = Log(doc)
	}
	return logs, nil
}

func (s *MongoStore) LastLog(ctx context.Context, habitID string) (*Log, error) {
	var doc logDoc
	err := s.db.Collection(logsCollection).FindOne(ctx,
		bson.M{"habitId": habitID},
		options.FindOne().SetSort(bson.D{{Key: "logDate", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last habit log: %w", err)
	}
	l := Log(doc)
	return &l, nil
}

func (s *MongoStore) SaveStreak(ctx context.Context, habitID string, st tracker.Streak) error {
	doc := streakDoc{
		HabitID:        habitID,
		CurrentStreak:  st.CurrentStreak,
		LongestStreak:  st.LongestStreak,
		LastLoggedDate: st.LastLoggedDate,
	}
	_, err := s.db.Collection(streaksCollection).ReplaceOne(ctx,
		bson.M{"_id": habitID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

func (s *MongoStore) GetStreak(ctx context.Context, habitID string) (tracker.Streak, error) {
	var doc streakDoc
	err := s.db.Collection(streaksCollection).FindOne(ctx, bson.M{"_id": habitID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return tracker.Streak{}, nil
	}
	if err != nil {
		return tracker.Streak{}, fmt.Errorf("get streak: %w", err)
	}
	return tracker.Streak{
		CurrentStreak:  doc.CurrentStreak,
		LongestStreak:  doc.LongestStreak,
		LastLoggedDate: doc.LastLoggedDate,
	}, nil
}

func (s *MongoStore) SaveStatistics(ctx context.Context, habitID string, st tracker.Statistics) error {
	doc := statisticsDoc{
		HabitID:          habitID,
		TotalCompletions: st.TotalCompletions,
		AveragePerWeek:   st.AveragePerWeek,
		LastUpdated:      st.LastUpdated,
	}
	_, err := s.db.Collection(statisticsCollection).ReplaceOne(ctx,
		bson.M{"_id": habitID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save statistics: %w", err)
	}
	return nil
}

func (s *MongoStore) GetStatistics(ctx context.Context, habitID string) (tracker.Statistics, error) {
	var doc statisticsDoc
	err := s.db.Collection(statisticsCollection).FindOne(ctx, bson.M{"_id": habitID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return tracker.Statistics{}, nil
	}
	if err != nil {
		return tracker.Statistics{}, fmt.Errorf("get statistics: %w", err)
	}
	return tracker.Statistics{
		TotalCompletions: doc.TotalCompletions,
		AveragePerWeek:   doc.AveragePerWeek,
		LastUpdated:      doc.LastUpdated,
	}, nil
}

func (s *MongoStore) CreateReminder(ctx context.Context, r Reminder) (Reminder, error) {
	now := time.Now()
	doc := reminderDoc{
		ID:           r.ID,
		HabitID:      r.HabitID,
		ReminderTime: r.ReminderTime,
		ReminderDays: nonNilDays(r.ReminderDays),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, err := s.db.Collection(remindersCollection).InsertOne(ctx, doc); err != nil {
		return Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	return Reminder(doc), nil
}

func (s *MongoStore) ListReminders(ctx context.Context, habitID string) ([]Reminder, error) {
	cur, err := s.db.Collection(remindersCollection).Find(ctx,
		bson.M{"habitId": habitID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	var docs []reminderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	reminders := make([]Reminder, len(docs))
	for i, doc := range docs {
		doc.ReminderDays = nonNilDays(doc.ReminderDays)
		reminders[i] = Reminder(doc)
	}
	return reminders, nil
}

func (s *MongoStore) DeleteReminder(ctx context.Context, habitID, reminderID string) error {
	res, err := s.db.Collection(remindersCollection).DeleteOne(ctx, bson.M{"_id": reminderID, "habitId": habitID})
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func habitFromDoc(doc habitDoc) (tracker.Habit, error) {
	return ParseHabit(RawHabit(doc))
}

func mongoErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
