// Package audit implements the audit log of the user management API: the time-range
// resolver behind audit queries, the Service that records and lists audit entries, and
// shippers that mirror every stored entry to external destinations (JSON-lines file,
// webhook) for consumers that do not read the database.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/usermanagement/usermanagement/internal/db/models"
	"github.com/usermanagement/usermanagement/internal/safego"
)

// LogEntry is the shipped form of an audit record
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	TableName string    `json:"table_name"`
	Operation string    `json:"operation"`
	UserID    string    `json:"user_id"`
}

// NewLogEntry converts a stored audit record into a LogEntry
func NewLogEntry(log *models.AuditLog) *LogEntry {
	return &LogEntry{
		ID:        log.ID,
		Timestamp: log.ChangedAt.UTC(),
		TableName: log.TableName,
		Operation: log.Operation,
		UserID:    log.UserID,
	}
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources
	Close() error
}

// ShipperConfig holds configuration for audit log shippers
type ShipperConfig struct {
	Enabled bool
	// Type is the shipper type (webhook, file)
	Type    string
	Webhook *WebhookConfig
	File    *FileConfig
}

// WebhookConfig holds webhook shipper configuration
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// BatchSize is how many entries to batch before sending (0 = no batching)
	BatchSize     int
	FlushInterval time.Duration
}

// FileConfig holds file shipper configuration
type FileConfig struct {
	Path string
	// MaxSizeMB is the size that triggers rotation (0 = never rotate)
	MaxSizeMB  int
	MaxBackups int
}

// MultiShipper fans an entry out to every enabled destination
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper builds the enabled shippers from configs. An empty or all-disabled
// config list yields a MultiShipper that ships nowhere.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		shipper, err := newShipper(cfg)
		if err != nil {
			ms.Close() // nolint:errcheck
			return nil, err
		}
		ms.shippers = append(ms.shippers, shipper)
	}
	return ms, nil
}

func newShipper(cfg ShipperConfig) (Shipper, error) {
	switch cfg.Type {
	case "webhook":
		if cfg.Webhook == nil || cfg.Webhook.URL == "" {
			return nil, fmt.Errorf("webhook shipper requires a url")
		}
		return NewWebhookShipper(cfg.Webhook), nil
	case "file":
		if cfg.File == nil || cfg.File.Path == "" {
			return nil, fmt.Errorf("file shipper requires a path")
		}
		fs, err := NewFileShipper(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file shipper: %w", err)
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown shipper type: %q", cfg.Type)
	}
}

// Len returns the number of active destinations
func (ms *MultiShipper) Len() int { return len(ms.shippers) }

// Ship sends entry to every destination. All destinations are attempted; the last
// failure is returned.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			slog.Warn("audit shipper failed", "entry", entry.ID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// Close closes every destination
func (ms *MultiShipper) Close() error {
	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper POSTs entries as JSON. With BatchSize > 0, entries are queued and sent as
// a JSON array when the batch fills, on every FlushInterval tick, and on Close.
type WebhookShipper struct {
	cfg    *WebhookConfig
	client *http.Client

	queue     chan *LogEntry
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a webhook shipper and, when batching, starts its flush loop
func NewWebhookShipper(cfg *WebhookConfig) *WebhookShipper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ws := &WebhookShipper{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		ws.queue = make(chan *LogEntry, cfg.BatchSize*4)
		safego.Go("audit webhook flush", ws.run)
	} else {
		close(ws.stopped)
	}
	return ws
}

func (ws *WebhookShipper) run() {
	defer close(ws.stopped)

	interval := ws.cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]*LogEntry, 0, ws.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ws.sendBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-ws.queue:
			batch = append(batch, entry)
			if len(batch) >= ws.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ws.done:
			for {
				select {
				case entry := <-ws.queue:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (ws *WebhookShipper) sendBatch(batch []*LogEntry) {
	data, err := json.Marshal(batch)
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.client.Timeout)
	defer cancel()

	if err := ws.post(ctx, data); err != nil {
		slog.Error("failed to send audit batch", "entries", len(batch), "error", err)
	}
}

// Ship queues entry when batching (falling back to a direct send when the queue is full)
// or POSTs it immediately
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.queue != nil {
		select {
		case <-ws.done:
		default:
			select {
			case ws.queue <- entry:
				return nil
			default:
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return ws.post(ctx, data)
}

func (ws *WebhookShipper) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any queued entries and stops the flush loop
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() { close(ws.done) })
	<-ws.stopped
	return nil
}

// FileShipper appends entries as JSON lines, rotating the file once it exceeds MaxSizeMB.
// Rotated files are named path.1 (newest) through path.MaxBackups.
type FileShipper struct {
	cfg  *FileConfig
	mu   sync.Mutex
	file *os.File
}

// NewFileShipper opens (or creates) the target file for appending
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := openAppend(cfg.Path)
	if err != nil {
		return nil, err
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return file, nil
}

// Ship writes entry as one JSON line
func (fs *FileShipper) Ship(ctx context.Context, entry *LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.needsRotation() {
		if err := fs.rotate(); err != nil {
			slog.Error("failed to rotate audit file", "path", fs.cfg.Path, "error", err)
		}
	}
	if fs.file == nil {
		// a previous rotation could not reopen the path
		file, err := openAppend(fs.cfg.Path)
		if err != nil {
			return err
		}
		fs.file = file
	}

	if _, err := fs.file.Write(line); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (fs *FileShipper) needsRotation() bool {
	if fs.cfg.MaxSizeMB <= 0 || fs.file == nil {
		return false
	}
	info, err := fs.file.Stat()
	return err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024
}

// rotate leaves fs.file nil when the path cannot be reopened; Ship retries the open.
func (fs *FileShipper) rotate() error {
	err := fs.file.Close()
	fs.file = nil
	if err != nil {
		return err
	}

	path := fs.cfg.Path
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", path, fs.cfg.MaxBackups))
		for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
		}
		_ = os.Rename(path, path+".1")
	} else {
		_ = os.Remove(path)
	}

	file, err := openAppend(path)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
