// Package clients is the registry of hiring clients and their scoring
// criteria. The registry is a YAML file; criteria keep the order they are
// written in because dimension keys are assigned by position.
package clients

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

var (
	// ErrUnknownClient is returned for a name that is not registered.
	ErrUnknownClient = errors.New("clients: unknown client")
	// ErrInvalidClient is returned by Add for a client that cannot be stored.
	ErrInvalidClient = errors.New("clients: invalid client")
)

// Layout selects how a client's criteria resolve into dimensions.
type Layout string

const (
	LayoutAuto    Layout = ""
	LayoutNumeric Layout = "numeric"
	LayoutMixed   Layout = "mixed"
)

// Client is one hiring client.
type Client struct {
	Name     string          `json:"name" yaml:"name"`
	Criteria schema.Criteria `json:"criteria" yaml:"-"`
	Layout   Layout          `json:"layout,omitempty" yaml:"layout,omitempty"`
	// Label is the subject word in score lines ("User" or "Row").
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Mixed reports whether the client uses the Yes/No plus graded layout. An
// explicit layout wins; otherwise a seven-question client whose name
// contains "Graduate" is mixed.
func (c Client) Mixed() bool {
	switch c.Layout {
	case LayoutMixed:
		return true
	case LayoutNumeric:
		return false
	}
	return strings.Contains(c.Name, "Graduate") && c.Criteria.Len() == 7
}

func (c Client) clone() Client {
	c.Criteria = c.Criteria.Clone()
	return c
}

func cloneAll(cs []Client) []Client {
	out := make([]Client, len(cs))
	for i, c := range cs {
		out[i] = c.clone()
	}
	return out
}

// Shape resolves the client's criteria.
func (c Client) Shape() schema.Shape {
	return schema.Resolve(c.Criteria, c.Mixed())
}

// Grammar returns the score-line grammar for label, defaulting to the
// client's own label.
func (c Client) Grammar(label string) scoreline.Grammar {
	g := scoreline.DefaultGrammar()
	if label == "" {
		label = c.Label
	}
	if label != "" {
		g.Label = label
	}
	return g
}

// builtins are served when no registry file exists yet.
var builtins = []Client{
	{
		Name:   "Graduate Scheme",
		Layout: LayoutMixed,
		Criteria: schema.NewCriteria(
			"Question 1", "Does the candidate have the right to work in the UK? (Yes/No)",
			"Question 2", "Will the candidate require visa sponsorship? (Yes/No)",
			"Question 3", "Does the candidate hold GCSE Maths at grade 4/C or above? (Yes/No)",
			"Question 4", "Understanding of the role: how well does the answer show what the job involves?",
			"Question 5", "Is the candidate available to start in September? (Yes/No)",
			"Question 6", "Motivation: why this company, with specific and genuine reasons.",
			"Question 7", "What stands out: evidence of achievements, initiative or relevant experience.",
		),
	},
	{
		Name: "Internship",
		Criteria: schema.NewCriteria(
			"Question 1", "Understanding of the role and its day-to-day work.",
			"Question 2", "Motivation for applying to this company.",
			"Question 3", "Relevant skills, projects or experience.",
		),
	},
}

// Builtins returns deep copies of the built-in clients.
func Builtins() []Client {
	return cloneAll(builtins)
}

// Registry is a file-backed, concurrency-safe set of clients.
type Registry struct {
	mu      sync.RWMutex
	path    string
	clients []Client
	logger  *zap.Logger
}

// Open loads the registry at path. A missing file yields the built-in
// clients; the file is created on the first change. An empty path keeps
// the registry in memory only.
func Open(path string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{path: path, logger: logger.Named("clients")}
	if path == "" {
		r.clients = Builtins()
		return r, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Info("registry file not found, using built-in clients", zap.String("path", path))
		r.clients = Builtins()
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clients: read %s: %w", path, err)
	}
	cs, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("clients: %s: %w", path, err)
	}
	r.clients = cs
	return r, nil
}

// List returns every client in registry order.
func (r *Registry) List() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.clients)
}

// Get returns the named client. Names match case-insensitively.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(name); i >= 0 {
		return r.clients[i].clone(), nil
	}
	return Client{}, fmt.Errorf("%w: %q", ErrUnknownClient, name)
}

// Add registers c, replacing any client with the same name, and persists
// the registry.
func (r *Registry) Add(c Client) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidClient)
	}
	switch c.Layout {
	case LayoutAuto, LayoutNumeric, LayoutMixed:
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidClient, c.Layout)
	}

	c = c.clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Client, len(r.clients))
	copy(next, r.clients)
	if i := r.index(c.Name); i >= 0 {
		next[i] = c
	} else {
		next = append(next, c)
	}
	if err := r.save(next); err != nil {
		return err
	}
	r.clients = next
	r.logger.Info("client saved", zap.String("client", c.Name), zap.Int("criteria", c.Criteria.Len()))
	return nil
}

// Delete removes the named client and persists the registry.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownClient, name)
	}
	next := make([]Client, 0, len(r.clients)-1)
	next = append(next, r.clients[:i]...)
	next = append(next, r.clients[i+1:]...)
	if err := r.save(next); err != nil {
		return err
	}
	r.clients = next
	r.logger.Info("client deleted", zap.String("client", name))
	return nil
}

// index must be called with r.mu held.
func (r *Registry) index(name string) int {
	name = strings.TrimSpace(name)
	for i, c := range r.clients {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// save writes cs to the registry file via a temporary file and rename.
func (r *Registry) save(cs []Client) error {
	if r.path == "" {
		return nil
	}
	data, err := Encode(cs)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("clients: create directory: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("clients: write: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("clients: rename: %w", err)
	}
	return nil
}
