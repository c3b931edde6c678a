// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package notify announces committed matching runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/someonegg/activitymatch/period"
)

type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	Brokers []string      `mapstructure:"brokers"`
	Topic   string        `mapstructure:"topic"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Event is the message body of a committed run.
type Event struct {
	Type string `json:"type"`
	*period.Summary
}

const EventMatched = "period.matched"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per run, keyed by period so the runs of
// a period stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewKafkaPublisher(cfg Config, log logrus.FieldLogger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	log.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("kafka publisher configured")
	return newKafkaPublisher(writer, cfg.Timeout, log)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, log logrus.FieldLogger) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaPublisher{writer: w, timeout: timeout, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, summ *period.Summary) error {
	value, err := json.Marshal(Event{Type: EventMatched, Summary: summ})
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(summ.PeriodID),
		Value: value,
		Time:  summ.Finished,
	})
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	p.log.WithField("period", summ.PeriodID).Debug("summary published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs the run, for deployments without a broker.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(ctx context.Context, summ *period.Summary) error {
	p.Log.WithFields(logrus.Fields{
		"period":        summ.PeriodID,
		"accepted":      summ.Accepted,
		"denied":        summ.Denied,
		"below_minimum": summ.OccasionsBelowMinimum,
	}).Info(EventMatched)
	return nil
}

var (
	_ period.Publisher = (*KafkaPublisher)(nil)
	_ period.Publisher = LogPublisher{}
)
