// Package mongojournal wires journal.StepJournal to a MongoDB collection.
package mongojournal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/distrihq/distri/ids"
	"github.com/distrihq/distri/journal"
)

const (
	defaultCollection = "task_journal"
	defaultTimeout    = 5 * time.Second
)

// Options configures the Mongo-backed journal.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Journal implements journal.StepJournal against a MongoDB collection,
// ordered by insertion via a monotonic (task_id, timestamp) index.
type Journal struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

type stepDocument struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	StepID       string        `bson:"step_id"`
	TaskID       string        `bson:"task_id"`
	ParentTaskID string        `bson:"parent_task_id,omitempty"`
	Kind         string        `bson:"kind"`
	Payload      []byte        `bson:"payload"`
	Timestamp    time.Time     `bson:"timestamp"`
}

// New builds a Mongo-backed StepJournal, creating the (task_id, timestamp)
// index used to serve ordered reads.
func New(ctx context.Context, opts Options) (*Journal, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ictx, index); err != nil {
		return nil, fmt.Errorf("mongojournal: create index: %w", err)
	}
	return &Journal{coll: coll, timeout: timeout}, nil
}

func (j *Journal) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if j.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, j.timeout)
}

func (j *Journal) Append(ctx context.Context, step journal.MemoryStep) (journal.MemoryStep, error) {
	if step.TaskID == "" {
		return journal.MemoryStep{}, errors.New("mongojournal: task id is required")
	}
	if step.ID == "" {
		step.ID = ids.New()
	}
	step.Timestamp = time.Now().UTC()

	ctx, cancel := j.withTimeout(ctx)
	defer cancel()

	doc := stepDocument{
		StepID:       step.ID,
		TaskID:       step.TaskID,
		ParentTaskID: step.ParentTaskID,
		Kind:         string(step.Kind),
		Payload:      append([]byte(nil), step.Payload...),
		Timestamp:    step.Timestamp,
	}
	if _, err := j.coll.InsertOne(ctx, doc); err != nil {
		return journal.MemoryStep{}, fmt.Errorf("mongojournal: insert: %w", err)
	}
	return step, nil
}

func (j *Journal) Load(ctx context.Context, taskID, parentTaskID string, limit int) ([]journal.MemoryStep, error) {
	if taskID == "" {
		return nil, errors.New("mongojournal: task id is required")
	}
	ctx, cancel := j.withTimeout(ctx)
	defer cancel()

	ids := []string{taskID}
	if parentTaskID != "" {
		ids = []string{parentTaskID, taskID}
	}
	filter := bson.M{"task_id": bson.M{"$in": ids}}
	cur, err := j.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongojournal: find: %w", err)
	}
	defer cur.Close(ctx)

	var out []journal.MemoryStep
	for cur.Next(ctx) {
		var doc stepDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongojournal: decode: %w", err)
		}
		out = append(out, journal.MemoryStep{
			ID:           doc.StepID,
			TaskID:       doc.TaskID,
			ParentTaskID: doc.ParentTaskID,
			Kind:         journal.StepKind(doc.Kind),
			Payload:      append([]byte(nil), doc.Payload...),
			Timestamp:    doc.Timestamp,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongojournal: cursor: %w", err)
	}
	if limit <= 0 || len(out) <= limit {
		return out, nil
	}

	nonTask := 0
	for _, s := range out {
		if s.Kind != journal.StepTask {
			nonTask++
		}
	}
	drop := min(len(out)-limit, nonTask)
	kept := make([]journal.MemoryStep, 0, len(out)-drop)
	for _, s := range out {
		if drop > 0 && s.Kind != journal.StepTask {
			drop--
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

func (j *Journal) DeleteTask(ctx context.Context, taskID string) error {
	ctx, cancel := j.withTimeout(ctx)
	defer cancel()
	if _, err := j.coll.DeleteMany(ctx, bson.M{"task_id": taskID}); err != nil {
		return fmt.Errorf("mongojournal: delete: %w", err)
	}
	return nil
}
