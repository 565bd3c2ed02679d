// Package statsd emits counters and timings in the DogStatsD line format.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink receives request and gateway metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Nop discards every metric. Its zero value is ready to use.
type Nop struct{}

func (Nop) Count(string, int64, map[string]string)           {}
func (Nop) Timing(string, time.Duration, map[string]string) {}

// Config describes how to reach a StatsD agent. An empty Address disables the client.
type Config struct {
	Address    string
	Prefix     string
	GlobalTags map[string]string
	Logger     *slog.Logger
}

// Client writes one UDP datagram per metric. It is safe for concurrent use.
type Client struct {
	prefix     string
	globalTags map[string]string
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured agent. With no address it returns a client
// that drops everything.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
		globalTags: cleanTags(cfg.GlobalTags),
		logger:     logger,
	}

	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	c.conn = conn
	return c, nil
}

// Enabled reports whether metrics leave the process.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.send(name, strconv.FormatFloat(ms, 'f', -1, 64), "ms", tags)
}

// Close releases the UDP socket. Later writes are dropped.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := c.format(name, value, kind, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// format renders prefix.name:value|kind|#k:v,... with tags sorted by key.
func (c *Client) format(name, value, kind string, tags map[string]string) string {
	metric := metricName(c.prefix, name)
	if metric == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)

	merged := cleanTags(c.globalTags)
	for k, v := range cleanTags(tags) {
		merged[k] = v
	}
	if len(merged) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	b.WriteString("|#")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String()
}

func metricName(prefix, name string) string {
	n := strings.NewReplacer(" ", "_", "/", "_").Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	n = strings.Trim(n, ".")
	switch {
	case n == "":
		return ""
	case prefix == "":
		return n
	default:
		return prefix + "." + n
	}
}

func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}
