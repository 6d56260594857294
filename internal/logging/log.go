package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	// DEBUG 调试级别
	DEBUG LogLevel = iota
	// INFO 信息级别
	INFO
	// WARN 警告级别
	WARN
	// ERROR 错误级别
	ERROR
	// FATAL 致命级别
	FATAL
)

// Logger 日志记录器
type Logger struct {
	debugLogger  *log.Logger
	infoLogger   *log.Logger
	warnLogger   *log.Logger
	errorLogger  *log.Logger
	fatalLogger  *log.Logger
	auditLogger  *log.Logger
	level        LogLevel
	auditEnabled bool
}

// Config 日志配置
type Config struct {
	Level        string
	Output       string
	AuditEnabled bool
	AuditOutput  string
	// Writer 非空时同时作为普通日志与审计日志的输出，优先于 Output
	Writer io.Writer
}

// AuditLogEntry 审计日志条目
type AuditLogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	EventType string                 `json:"event_type"`
	User      string                 `json:"user,omitempty"`
	IP        string                 `json:"ip,omitempty"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Result    string                 `json:"result"`
	Message   string                 `json:"message"`
}

// ParseLevel 解析日志级别，无法识别时返回 INFO
func ParseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DEBUG
	case "warn":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// openOutput 打开日志输出，失败时退回标准输出
func openOutput(path string) io.Writer {
	if path == "stdout" || path == "" {
		return os.Stdout
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("Failed to open log file %s: %v, using stdout instead\n", path, err)
		return os.Stdout
	}
	return f
}

// NewLogger 创建新的日志记录器
func NewLogger(config Config) *Logger {
	output := config.Writer
	if output == nil {
		output = openOutput(config.Output)
	}

	// 创建基本日志记录器
	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	logger := &Logger{
		debugLogger:  log.New(output, "[DEBUG] ", flags),
		infoLogger:   log.New(output, "[INFO]  ", flags),
		warnLogger:   log.New(output, "[WARN]  ", flags),
		errorLogger:  log.New(output, "[ERROR] ", flags),
		fatalLogger:  log.New(output, "[FATAL] ", flags),
		level:        ParseLevel(config.Level),
		auditEnabled: config.AuditEnabled,
	}

	// 初始化审计日志记录器
	if config.AuditEnabled {
		auditOutput := config.Writer
		if auditOutput == nil {
			auditOutput = openOutput(config.AuditOutput)
		}
		logger.auditLogger = log.New(auditOutput, "", 0) // 审计日志使用JSON格式，不需要前缀和时间戳
	}

	return logger
}

// Debug 记录调试日志
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level <= DEBUG {
		l.debugLogger.Printf(format, v...)
	}
}

// Info 记录信息日志
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level <= INFO {
		l.infoLogger.Printf(format, v...)
	}
}

// Warn 记录警告日志
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level <= WARN {
		l.warnLogger.Printf(format, v...)
	}
}

// Error 记录错误日志
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level <= ERROR {
		l.errorLogger.Printf(format, v...)
	}
}

// Fatal 记录致命日志并退出程序
func (l *Logger) Fatal(format string, v ...interface{}) {
	if l.level <= FATAL {
		l.fatalLogger.Printf(format, v...)
		os.Exit(1)
	}
}

// Audit 记录审计日志
func (l *Logger) Audit(entry AuditLogEntry) {
	if !l.auditEnabled {
		return
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		l.Error("Failed to marshal audit log: %v", err)
		return
	}

	l.auditLogger.Println(string(jsonData))
}

// LogAdminAction 记录管理员操作
func (l *Logger) LogAdminAction(user string, ip string, action string, resource string, details map[string]interface{}, result string, message string) {
	l.Audit(AuditLogEntry{
		Level:     "ADMIN",
		EventType: "admin_action",
		User:      user,
		IP:        ip,
		Action:    action,
		Resource:  resource,
		Details:   details,
		Result:    result,
		Message:   message,
	})
}

// LogRegeneration 记录一次页面池重建的结果
func (l *Logger) LogRegeneration(domain string, generation string, pages int, duration time.Duration, err error) {
	result := "success"
	message := fmt.Sprintf("regenerated %d pages", pages)
	if err != nil {
		result = "failure"
		message = err.Error()
	}
	l.Audit(AuditLogEntry{
		Level:     "POOL",
		EventType: "regeneration",
		Action:    "regenerate",
		Resource:  domain,
		Details: map[string]interface{}{
			"generation":  generation,
			"pages":       pages,
			"duration_ms": duration.Milliseconds(),
		},
		Result:  result,
		Message: message,
	})
	if err != nil {
		l.Error("Regeneration of %s failed after %d pages: %v", domain, pages, err)
	} else {
		l.Info("Regenerated %s: %d pages, generation %s, %s", domain, pages, generation, duration)
	}
}

// LoggerInterface 日志接口
type LoggerInterface interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})
	Audit(entry AuditLogEntry)
	LogAdminAction(user string, ip string, action string, resource string, details map[string]interface{}, result string, message string)
	LogRegeneration(domain string, generation string, pages int, duration time.Duration, err error)
}

// DefaultLogger 默认日志记录器
var DefaultLogger *Logger

// Init 按配置替换默认日志记录器
func Init(config Config) {
	DefaultLogger = NewLogger(config)
}

func init() {
	DefaultLogger = NewLogger(Config{
		Level:        "info",
		Output:       "stdout",
		AuditEnabled: true,
		AuditOutput:  "stdout",
	})
}
