// Package queue plans images requested over kafka and publishes the results.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan"
	"github.com/menta2k/magickplan/internal/config"
	"github.com/menta2k/magickplan/pkg/operation"
	"github.com/menta2k/magickplan/pkg/types"
)

// Task asks for one plan. Source is a file path or an http(s) URL.
type Task struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	Faces      types.Faces      `json:"faces"`
	Operations []operation.Spec `json:"operations"`
}

// Result is published for every task, successful or not
type Result struct {
	ID       string            `json:"id"`
	Commands []string          `json:"commands,omitempty"`
	Pipeline string            `json:"pipeline,omitempty"`
	State    *types.ImageState `json:"state,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Reader is the subset of *kafka.Reader the worker uses
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes results
type Producer interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}

// Planner plans a source given by path or URL
type Planner interface {
	PlanSource(ctx context.Context, source string, faces types.Faces, ops []operation.Spec) (*magickplan.Result, error)
}

// NewReader creates a consumer-group reader for the task topic
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})
}

// KafkaProducer writes JSON messages to a single topic
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for topic
func NewProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Publish marshals value and writes it under key
func (p *KafkaProducer) Publish(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
}

// Close flushes pending writes
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// Worker consumes tasks one at a time
type Worker struct {
	reader   Reader
	producer Producer
	planner  Planner
	log      logrus.FieldLogger
	// PublishTimeout bounds each result write.
	PublishTimeout time.Duration
}

// NewWorker creates a worker
func NewWorker(r Reader, p Producer, planner Planner, log logrus.FieldLogger) *Worker {
	return &Worker{
		reader:         r,
		producer:       p,
		planner:        planner,
		log:            log,
		PublishTimeout: 10 * time.Second,
	}
}

// Run processes messages until ctx is cancelled. A message is committed
// once its result has been published.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("plan worker started")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("plan worker stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		log := w.log.WithFields(logrus.Fields{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		})

		result := w.Handle(ctx, msg.Value)
		if result.Error != "" {
			log.WithField("id", result.ID).Warn("task failed: " + result.Error)
		} else {
			log.WithField("id", result.ID).Info("task planned")
		}

		if err := w.publish(ctx, result); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to publish result %s: %w", result.ID, err)
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to commit offset: %w", err)
		}
	}
}

func (w *Worker) publish(ctx context.Context, result Result) error {
	ctx, cancel := context.WithTimeout(ctx, w.PublishTimeout)
	defer cancel()
	return w.producer.Publish(ctx, result.ID, result)
}

// Handle decodes and plans a single task message
func (w *Worker) Handle(ctx context.Context, value []byte) Result {
	var task Task
	if err := json.Unmarshal(value, &task); err != nil {
		return Result{ID: uuid.New().String(), Error: "invalid task: " + err.Error()}
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Source == "" {
		return Result{ID: task.ID, Error: "task has no source"}
	}

	res, err := w.planner.PlanSource(ctx, task.Source, task.Faces, task.Operations)
	if err != nil {
		return Result{ID: task.ID, Error: err.Error()}
	}
	state := res.State
	return Result{
		ID:       task.ID,
		Commands: res.Commands,
		Pipeline: res.Pipeline,
		State:    &state,
	}
}

// Close releases the reader and the producer
func (w *Worker) Close() error {
	return errors.Join(w.reader.Close(), w.producer.Close())
}
