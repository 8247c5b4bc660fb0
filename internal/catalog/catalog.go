package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/promptd/internal/injection"
	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

// Catalog provides read-only lookups of definitions by id.
type Catalog interface {
	GetPrompt(id string) (*Prompt, error)
	GetGate(id string) (*Gate, error)
	GetFramework(id string) (*Framework, error)
	CategoryInjection(category string) injection.Config
	ListPrompts() []*Prompt
}

// FileCatalog loads definitions from YAML files in a directory and supports
// request-scoped temporary gates.
type FileCatalog struct {
	dir    string
	logger *zap.Logger

	mu         sync.RWMutex
	prompts    map[string]*Prompt
	gates      map[string]*Gate
	frameworks map[string]*Framework
	categories map[string]injection.Config
	tempGates  map[string]*Gate
}

// NewFileCatalog creates a catalog rooted at dir and performs the initial load.
func NewFileCatalog(dir string, logger *zap.Logger) (*FileCatalog, error) {
	if dir == "" {
		return nil, fmt.Errorf("catalog directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &FileCatalog{
		dir:       dir,
		logger:    logger,
		tempGates: make(map[string]*Gate),
	}
	if err := c.Reload(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads every definition file. On failure the previous snapshot
// stays in place.
func (c *FileCatalog) Reload(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return prompterr.Unavailable("read catalog directory", err)
	}

	prompts := make(map[string]*Prompt)
	gates := make(map[string]*Gate)
	frameworks := make(map[string]*Framework)
	categories := make(map[string]injection.Config)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		doc, err := loadDocument(filepath.Join(c.dir, name))
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}

		for _, p := range doc.Prompts {
			if p.ID == "" {
				return prompterr.InvalidInput("load catalog", fmt.Errorf("%s: prompt without id", name))
			}
			prompts[p.ID] = p
		}
		for _, g := range doc.Gates {
			if g.ID == "" {
				return prompterr.InvalidInput("load catalog", fmt.Errorf("%s: gate without id", name))
			}
			gates[g.ID] = g
		}
		for _, f := range doc.Frameworks {
			if f.ID == "" {
				return prompterr.InvalidInput("load catalog", fmt.Errorf("%s: framework without id", name))
			}
			frameworks[f.ID] = f
		}
		for cat, cfg := range doc.Categories {
			categories[cat] = cfg
		}
	}

	c.mu.Lock()
	c.prompts = prompts
	c.gates = gates
	c.frameworks = frameworks
	c.categories = categories
	c.mu.Unlock()

	c.logger.Info("catalog loaded",
		zap.Int("prompts", len(prompts)),
		zap.Int("gates", len(gates)),
		zap.Int("frameworks", len(frameworks)),
	)
	return nil
}

func loadDocument(path string) (*document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, prompterr.Unavailable("read catalog file", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, prompterr.InvalidInput("parse catalog yaml", err)
	}

	var doc document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, prompterr.InvalidInput("unmarshal catalog yaml", err)
	}
	return &doc, nil
}

// GetPrompt returns the prompt definition for id.
func (c *FileCatalog) GetPrompt(id string) (*Prompt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.prompts[id]; ok {
		return p, nil
	}
	return nil, prompterr.NotFound("prompt", id)
}

// GetGate returns the gate definition for id, checking static definitions
// before temporary ones.
func (c *FileCatalog) GetGate(id string) (*Gate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if g, ok := c.gates[id]; ok {
		return g, nil
	}
	if g, ok := c.tempGates[id]; ok {
		return g, nil
	}
	return nil, prompterr.NotFound("gate", id)
}

// GetFramework returns the framework definition for id.
func (c *FileCatalog) GetFramework(id string) (*Framework, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if f, ok := c.frameworks[id]; ok {
		return f, nil
	}
	return nil, prompterr.NotFound("framework", id)
}

// CategoryInjection returns category-level injection config, or nil.
func (c *FileCatalog) CategoryInjection(category string) injection.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories[category]
}

// ListPrompts returns every prompt definition, sorted by id.
func (c *FileCatalog) ListPrompts() []*Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Prompt, 0, len(c.prompts))
	for _, p := range c.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RegisterTemporaryGate adds a request-scoped gate. It does not shadow a
// static gate with the same id.
func (c *FileCatalog) RegisterTemporaryGate(g *Gate) error {
	if g == nil || g.ID == "" {
		return prompterr.InvalidInput("register temporary gate", fmt.Errorf("gate id is required"))
	}
	gate := *g
	gate.Temporary = true

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tempGates[gate.ID] = &gate
	return nil
}

// UnregisterTemporaryGate removes a request-scoped gate. Unknown ids are a
// no-op, so cleanup stages can call it unconditionally.
func (c *FileCatalog) UnregisterTemporaryGate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tempGates, id)
}
