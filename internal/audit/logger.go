package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Incident lifecycle events
	LogIncidentDetected(ctx context.Context, incidentID, service, severity string) error
	LogIncidentMerged(ctx context.Context, incidentID string, duplicateCount int) error
	LogIncidentEscalated(ctx context.Context, incidentID, reason string) error
	LogIncidentResolved(ctx context.Context, incidentID string, duration time.Duration) error

	// Action lifecycle events
	LogActionProposed(ctx context.Context, incidentID, actionID, actionType, service string) error
	LogActionApproved(ctx context.Context, incidentID, actionID, approver string) error
	LogActionRejected(ctx context.Context, incidentID, actionID, operator, reason string) error
	LogActionExecuted(ctx context.Context, incidentID, actionID, outcome string, duration time.Duration) error

	// Configuration reloads
	LogRegistryReload(ctx context.Context, which string, ok bool, detail string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("incident_id", event.IncidentID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogIncidentDetected logs when a new incident enters the pipeline
func (l *auditLogger) LogIncidentDetected(ctx context.Context, incidentID, service, severity string) error {
	event := NewEvent(EventIncidentDetected).
		WithIncident(incidentID).
		WithService(service).
		WithResult(ResultSuccess).
		WithMetadata("severity", severity).
		WithDescription(fmt.Sprintf("Incident %s detected on %s (%s)", incidentID, service, severity))

	return l.Log(ctx, event)
}

// LogIncidentMerged logs when a candidate folds into a live incident
func (l *auditLogger) LogIncidentMerged(ctx context.Context, incidentID string, duplicateCount int) error {
	event := NewEvent(EventIncidentMerged).
		WithIncident(incidentID).
		WithResult(ResultSuccess).
		WithMetadata("duplicate_count", duplicateCount).
		WithDescription(fmt.Sprintf("Incident %s absorbed a duplicate (count %d)", incidentID, duplicateCount))

	return l.Log(ctx, event)
}

// LogIncidentEscalated logs when an incident is handed to operators
func (l *auditLogger) LogIncidentEscalated(ctx context.Context, incidentID, reason string) error {
	event := NewEvent(EventIncidentEscalated).
		WithIncident(incidentID).
		WithResult(ResultSuccess).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Incident %s escalated: %s", incidentID, reason))

	return l.Log(ctx, event)
}

// LogIncidentResolved logs when an incident closes successfully
func (l *auditLogger) LogIncidentResolved(ctx context.Context, incidentID string, duration time.Duration) error {
	event := NewEvent(EventIncidentResolved).
		WithIncident(incidentID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Incident %s resolved", incidentID))

	return l.Log(ctx, event)
}

// LogActionProposed logs when an action is proposed
func (l *auditLogger) LogActionProposed(ctx context.Context, incidentID, actionID, actionType, service string) error {
	event := NewEvent(EventActionProposed).
		WithIncident(incidentID).
		WithActionID(actionID).
		WithAction(actionType).
		WithService(service).
		WithResult(ResultPending).
		WithDescription(fmt.Sprintf("Action %s (%s) proposed for %s", actionID, actionType, service))

	return l.Log(ctx, event)
}

// LogActionApproved logs when an action is approved
func (l *auditLogger) LogActionApproved(ctx context.Context, incidentID, actionID, approver string) error {
	event := NewEvent(EventActionApproved).
		WithIncident(incidentID).
		WithActionID(actionID).
		WithOperator(approver).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Action %s approved by %s", actionID, approver))

	return l.Log(ctx, event)
}

// LogActionRejected logs when an action is rejected
func (l *auditLogger) LogActionRejected(ctx context.Context, incidentID, actionID, operator, reason string) error {
	event := NewEvent(EventActionRejected).
		WithIncident(incidentID).
		WithActionID(actionID).
		WithOperator(operator).
		WithResult(ResultDenied).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Action %s rejected by %s: %s", actionID, operator, reason))

	return l.Log(ctx, event)
}

// LogActionExecuted logs when an action finishes executing
func (l *auditLogger) LogActionExecuted(ctx context.Context, incidentID, actionID, outcome string, duration time.Duration) error {
	event := NewEvent(EventActionExecuted).
		WithIncident(incidentID).
		WithActionID(actionID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("outcome", outcome).
		WithDescription(fmt.Sprintf("Action %s executed, verification %s", actionID, outcome))

	return l.Log(ctx, event)
}

// LogRegistryReload logs a dependency-graph or runbook reload attempt
func (l *auditLogger) LogRegistryReload(ctx context.Context, which string, ok bool, detail string) error {
	eventType := EventGraphReloaded
	if which == "runbooks" {
		eventType = EventRunbookReloaded
	}
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	event := NewEvent(eventType).
		WithResult(result).
		WithMetadata("detail", detail).
		WithDescription(fmt.Sprintf("Registry %s reload: %s", which, detail))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}
