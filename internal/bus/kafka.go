package bus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/davolpi-it/export-cron/internal/connections"
)

// BusResolver looks up a named bus connection in the configuration
// document.
type BusResolver interface {
	Bus(name string) (connections.BusConnection, error)
}

// KafkaFactory opens one client per named connection and reuses it across
// fires. Clients are closed together at shutdown.
type KafkaFactory struct {
	resolver BusResolver

	mu      sync.Mutex
	clients map[string]*kafkaProducer
}

func NewKafkaFactory(resolver BusResolver) *KafkaFactory {
	return &KafkaFactory{resolver: resolver, clients: make(map[string]*kafkaProducer)}
}

func (f *KafkaFactory) Producer(name string) (Producer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.clients[name]; ok {
		return p, nil
	}
	conn, err := f.resolver.Bus(name)
	if err != nil {
		return nil, err
	}
	opts, err := clientOptions(conn)
	if err != nil {
		return nil, fmt.Errorf("bus: connection %q: %w", name, err)
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %q: %w", name, err)
	}
	log.Printf("kafka: producer ready connection=%s servers=%s protocol=%s",
		name, conn.BootstrapServers, protocolOrDefault(conn.SecurityProtocol))
	p := &kafkaProducer{client: client}
	f.clients[name] = p
	return p, nil
}

// Close shuts every opened client down after flushing in-flight sends.
func (f *KafkaFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, p := range f.clients {
		p.Close()
		delete(f.clients, name)
	}
}

func clientOptions(conn connections.BusConnection) ([]kgo.Opt, error) {
	opts := []kgo.Opt{kgo.SeedBrokers(conn.Servers()...)}

	protocol := protocolOrDefault(conn.SecurityProtocol)
	if strings.Contains(protocol, "SASL") {
		mech, err := saslMechanism(conn)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mech))
	}
	if strings.Contains(protocol, "SSL") {
		cfg, err := tlsConfig(conn)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.DialTLSConfig(cfg))
	}
	return opts, nil
}

func protocolOrDefault(p string) string {
	if p == "" {
		return "PLAINTEXT"
	}
	return strings.ToUpper(p)
}

func saslMechanism(conn connections.BusConnection) (sasl.Mechanism, error) {
	switch strings.ToUpper(conn.SASLMechanism) {
	case "", "PLAIN":
		return plain.Auth{User: conn.SASLUsername, Pass: conn.SASLPassword}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return scram.Auth{User: conn.SASLUsername, Pass: conn.SASLPassword}.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return scram.Auth{User: conn.SASLUsername, Pass: conn.SASLPassword}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism %q", conn.SASLMechanism)
	}
}

func tlsConfig(conn connections.BusConnection) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if conn.SSLCAFile != "" {
		pem, err := os.ReadFile(conn.SSLCAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca file %s holds no certificates", conn.SSLCAFile)
		}
		cfg.RootCAs = pool
	}
	if conn.SSLCertFile != "" && conn.SSLKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(conn.SSLCertFile, conn.SSLKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

type kafkaProducer struct {
	client *kgo.Client
}

func (p *kafkaProducer) Send(ctx context.Context, msg Message, done func(error)) {
	record := &kgo.Record{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		done(err)
	})
}

func (p *kafkaProducer) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

func (p *kafkaProducer) Close() {
	p.client.Close()
}
