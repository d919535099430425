package reporter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"firestige.xyz/stallwatch/internal/config"
	"firestige.xyz/stallwatch/internal/core"
)

const (
	defaultBatchTimeout = 100 * time.Millisecond
	defaultMaxAttempts  = 3
	dialTimeout         = 10 * time.Second
)

// messageWriter is the part of *kafka.Writer used by the reporter.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter sends events to a Kafka topic keyed by node and network.
type KafkaReporter struct {
	writer messageWriter
	topic  string

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// NewKafkaReporter creates the writer. Brokers are not contacted until the
// first event.
func NewKafkaReporter(cfg config.KafkaReporterConfig) (*KafkaReporter, error) {
	wc, err := writerConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka: %w", core.ErrReporterInitFailed, err)
	}

	slog.Info("kafka reporter started",
		"brokers", wc.Brokers,
		"topic", wc.Topic,
		"batch_timeout", wc.BatchTimeout,
		"compression", cfg.Compression,
		"sasl", cfg.SASL.Enabled,
		"tls", cfg.TLS.Enabled,
	)
	return &KafkaReporter{writer: kafka.NewWriter(wc), topic: cfg.Topic}, nil
}

func writerConfig(cfg config.KafkaReporterConfig) (kafka.WriterConfig, error) {
	if len(cfg.Brokers) == 0 {
		return kafka.WriterConfig{}, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return kafka.WriterConfig{}, fmt.Errorf("topic is required")
	}

	wc := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: defaultBatchTimeout,
		MaxAttempts:  defaultMaxAttempts,
		Async:        false,
	}
	if cfg.BatchTimeout != "" {
		d, err := time.ParseDuration(cfg.BatchTimeout)
		if err != nil {
			return wc, fmt.Errorf("invalid batch_timeout: %w", err)
		}
		wc.BatchTimeout = d
	}
	if cfg.MaxAttempts > 0 {
		wc.MaxAttempts = cfg.MaxAttempts
	}

	switch cfg.Compression {
	case "none", "":
		wc.CompressionCodec = nil
	case "gzip":
		wc.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		wc.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		wc.CompressionCodec = compress.Lz4.Codec()
	case "zstd":
		wc.CompressionCodec = compress.Zstd.Codec()
	default:
		return wc, fmt.Errorf("invalid compression type: %s", cfg.Compression)
	}

	if cfg.SASL.Enabled || cfg.TLS.Enabled {
		dialer := &kafka.Dialer{Timeout: dialTimeout, DualStack: true}
		if cfg.SASL.Enabled {
			mech, err := saslMechanism(cfg.SASL)
			if err != nil {
				return wc, err
			}
			dialer.SASLMechanism = mech
		}
		if cfg.TLS.Enabled {
			tlsCfg, err := tlsConfig(cfg.TLS)
			if err != nil {
				return wc, err
			}
			dialer.TLS = tlsCfg
		}
		wc.Dialer = dialer
	}

	return wc, nil
}

func saslMechanism(cfg config.SASLConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.Mechanism) {
	case "", "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism: %s", cfg.Mechanism)
	}
}

func tlsConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read ca_cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CACert)
		}
		tc.RootCAs = pool
	}

	if cfg.ClientCert != "" || cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

func (r *KafkaReporter) Name() string { return "kafka" }

// Report writes ev synchronously.
func (r *KafkaReporter) Report(ctx context.Context, ev Event) error {
	msg, err := r.message(ev)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize event failed: %w", err)
	}

	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}

	r.reportedCount.Add(1)
	return nil
}

func (r *KafkaReporter) message(ev Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}

	msg := kafka.Message{
		Key:   []byte(ev.Node + "/" + ev.Network),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: core.LabelNetwork, Value: []byte(ev.Network)},
			{Key: "state", Value: []byte(ev.State())},
		},
	}
	for k, v := range ev.Tags {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}

// Close flushes pending messages.
func (r *KafkaReporter) Close() error {
	if err := r.writer.Close(); err != nil {
		slog.Error("error closing kafka writer", "error", err)
		return err
	}
	slog.Info("kafka reporter stopped",
		"topic", r.topic,
		"total_reported", r.reportedCount.Load(),
		"total_errors", r.errorCount.Load(),
	)
	return nil
}
