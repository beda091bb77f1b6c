// Package connections reads the durable configuration document: the job
// catalog plus the named database and message-bus connections jobs refer
// to. The on-disk job entries are loosely-typed key/value maps kept for
// compatibility with existing documents; Load converts them into the
// compile-time-checked domain types before anything else sees them.
package connections

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/davolpi-it/export-cron/internal/domain"
)

// DatabaseConnection is a named SQL endpoint.
type DatabaseConnection struct {
	Driver      string `json:"driver"`
	DSN         string `json:"dsn"`
	Description string `json:"description,omitempty"`
}

// BusConnection is a named message-bus endpoint.
type BusConnection struct {
	BootstrapServers string `json:"bootstrap_servers"`
	SecurityProtocol string `json:"security_protocol,omitempty"`
	SASLMechanism    string `json:"sasl_mechanism,omitempty"`
	SASLUsername     string `json:"sasl_username,omitempty"`
	SASLPassword     string `json:"sasl_password,omitempty"`
	SSLCAFile        string `json:"ssl_cafile,omitempty"`
	SSLCertFile      string `json:"ssl_certfile,omitempty"`
	SSLKeyFile       string `json:"ssl_keyfile,omitempty"`
}

// Servers splits the comma-separated bootstrap list.
func (c BusConnection) Servers() []string {
	parts := strings.Split(c.BootstrapServers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// jobEntry mirrors one scheduling entry as it appears on disk.
type jobEntry struct {
	Query       string `json:"query"`
	Connection  string `json:"connection"`
	Enabled     *bool  `json:"enabled,omitempty"`
	Description string `json:"description,omitempty"`

	SchedulingMode string `json:"scheduling_mode,omitempty"`
	DaysOfWeek     []int  `json:"days_of_week,omitempty"`
	Hour           *int   `json:"hour,omitempty"`
	Minute         *int   `json:"minute,omitempty"`
	Second         *int   `json:"second,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	EndDate        string `json:"end_date,omitempty"`

	OutputFilenameTemplate string `json:"output_filename_template,omitempty"`
	OutputDateFormat       string `json:"output_date_format,omitempty"`
	OutputOffsetDays       int    `json:"output_offset_days,omitempty"`
	OutputCompressGZ       bool   `json:"output_compress_gz,omitempty"`

	SharingMode string `json:"sharing_mode,omitempty"`
	OutputDir   string `json:"output_dir,omitempty"`

	EmailRecipients string `json:"email_recipients,omitempty"`
	EmailTo         string `json:"email_to,omitempty"`
	EmailCC         string `json:"email_cc,omitempty"`
	EmailSubject    string `json:"email_subject,omitempty"`
	EmailBody       string `json:"email_body,omitempty"`

	RetryAttempt *int `json:"retry_attempt,omitempty"`

	KafkaTopic           string `json:"kafka_topic,omitempty"`
	KafkaKeyField        string `json:"kafka_key_field,omitempty"`
	KafkaBatchSize       int    `json:"kafka_batch_size,omitempty"`
	KafkaIncludeMetadata *bool  `json:"kafka_include_metadata,omitempty"`
	KafkaConnection      string `json:"kafka_connection,omitempty"`
}

type document struct {
	Databases map[string]DatabaseConnection `json:"databases"`
	Buses     map[string]BusConnection      `json:"kafka_connections"`
	Jobs      []jobEntry                    `json:"scheduling"`
}

// Provider loads and serves the configuration document. Reload replaces
// the whole snapshot atomically; readers always see a consistent view.
type Provider struct {
	path string

	mu  sync.RWMutex
	doc document
}

func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Load reads the document from disk and replaces the current snapshot.
func (p *Provider) Load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("connections: read %s: %w", p.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("connections: parse %s: %w", p.path, err)
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return nil
}

// DatabaseDSN resolves a named database connection.
func (p *Provider) DatabaseDSN(name string) (driver, dsn string, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.doc.Databases[name]
	if !ok {
		return "", "", fmt.Errorf("connections: unknown database connection %q", name)
	}
	if conn.Driver == "" {
		conn.Driver = "postgres"
	}
	return conn.Driver, conn.DSN, nil
}

// Bus resolves a named message-bus connection.
func (p *Provider) Bus(name string) (BusConnection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.doc.Buses[name]
	if !ok {
		return BusConnection{}, fmt.Errorf("connections: unknown bus connection %q", name)
	}
	return conn, nil
}

// Jobs converts every scheduling entry into a JobDefinition. Entries that
// cannot be converted are skipped with the returned problem list; one bad
// entry never hides the rest.
func (p *Provider) Jobs() ([]domain.JobDefinition, []error) {
	p.mu.RLock()
	entries := p.doc.Jobs
	p.mu.RUnlock()

	jobs := make([]domain.JobDefinition, 0, len(entries))
	var problems []error
	for i, e := range entries {
		job, err := e.toDomain()
		if err != nil {
			problems = append(problems, fmt.Errorf("connections: entry %d (%s): %w", i, e.Query, err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, problems
}

func (e jobEntry) toDomain() (domain.JobDefinition, error) {
	if e.Query == "" {
		return domain.JobDefinition{}, fmt.Errorf("missing query")
	}

	mode := domain.ScheduleModeClassic
	if e.SchedulingMode == "cron" {
		mode = domain.ScheduleModeCron
	}

	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}

	delivery, err := e.delivery()
	if err != nil {
		return domain.JobDefinition{}, err
	}

	return domain.JobDefinition{
		Query:       e.Query,
		Connection:  e.Connection,
		Enabled:     enabled,
		Description: e.Description,
		Schedule: domain.ScheduleSpec{
			Mode:           mode,
			DaysOfWeek:     e.DaysOfWeek,
			Hour:           e.Hour,
			Minute:         e.Minute,
			Second:         e.Second,
			CronExpression: e.CronExpression,
		},
		EndDate: e.EndDate,
		Output: domain.OutputTemplate{
			FilenameTemplate: e.OutputFilenameTemplate,
			DateFormat:       e.OutputDateFormat,
			OffsetDays:       e.OutputOffsetDays,
			Compress:         e.OutputCompressGZ,
		},
		Delivery: delivery,
	}, nil
}

func (e jobEntry) delivery() (domain.DeliveryConfig, error) {
	switch e.SharingMode {
	case "", "filesystem":
		return domain.DeliveryConfig{
			Mode:       domain.DeliveryModeFilesystem,
			Filesystem: &domain.FilesystemDelivery{OutputDir: e.OutputDir},
		}, nil
	case "email":
		return domain.DeliveryConfig{
			Mode: domain.DeliveryModeEmail,
			Email: &domain.EmailDelivery{
				FilesystemDelivery: domain.FilesystemDelivery{OutputDir: e.OutputDir},
				To:                 e.EmailTo,
				CC:                 e.EmailCC,
				LegacyRecipients:   e.EmailRecipients,
				Subject:            e.EmailSubject,
				Body:               e.EmailBody,
			},
		}, nil
	case "kafka":
		if e.KafkaTopic == "" {
			return domain.DeliveryConfig{}, fmt.Errorf("sharing_mode kafka requires kafka_topic")
		}
		batch := e.KafkaBatchSize
		if batch <= 0 {
			batch = 100
		}
		includeMeta := true
		if e.KafkaIncludeMetadata != nil {
			includeMeta = *e.KafkaIncludeMetadata
		}
		return domain.DeliveryConfig{
			Mode: domain.DeliveryModeMessaging,
			Messaging: &domain.MessagingDelivery{
				Topic:           e.KafkaTopic,
				KeyField:        e.KafkaKeyField,
				BatchSize:       batch,
				IncludeMetadata: includeMeta,
				Connection:      e.KafkaConnection,
			},
		}, nil
	default:
		return domain.DeliveryConfig{}, fmt.Errorf("unknown sharing_mode %q", e.SharingMode)
	}
}
