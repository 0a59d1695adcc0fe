// Package host starts embedding plugins and exposes them as embedding providers.
package host

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/spetr/tablerag/pkg/plugin/shared"
	"github.com/spetr/tablerag/pkg/types"
)

// PluginInfo describes an executable found in the plugins directory.
type PluginInfo struct {
	Name   string
	Path   string
	Size   int64
	Loaded bool
}

// Manager runs embedding plugins from one directory. A plugin process is
// started on first use and shared until it is unloaded.
type Manager struct {
	dir    string
	logger hclog.Logger

	mu      sync.Mutex
	running map[string]*runningPlugin
}

type runningPlugin struct {
	path    string
	client  *plugin.Client
	adapter *EmbeddingAdapter
}

// NewManager creates a manager for the plugins in dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir: dir,
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "plugins",
			Level:  hclog.Warn,
			Output: os.Stderr,
		}),
		running: make(map[string]*runningPlugin),
	}
}

// Dir returns the plugins directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Discover lists the executables in the plugins directory, sorted by name.
// A missing directory yields no plugins.
func (m *Manager) Discover() ([]PluginInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var plugins []PluginInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Mode()&0111 == 0 {
			continue
		}
		_, loaded := m.running[entry.Name()]
		plugins = append(plugins, PluginInfo{
			Name:   entry.Name(),
			Path:   filepath.Join(m.dir, entry.Name()),
			Size:   info.Size(),
			Loaded: loaded,
		})
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name < plugins[j].Name })
	return plugins, nil
}

// Path resolves name to an executable inside the plugins directory. Names are
// plain file names; anything that could escape the directory is rejected.
func (m *Manager) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid plugin name %q", types.ErrInvalidConfig, name)
	}

	path := filepath.Join(m.dir, name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: plugin %s in %s", types.ErrNotFound, name, m.dir)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() || info.Mode()&0111 == 0 {
		return "", fmt.Errorf("%w: plugin %s is not executable", types.ErrProviderNotAvailable, name)
	}
	return path, nil
}

// LoadEmbedding starts the named plugin, or reuses the running one, and
// returns it as an embedding provider with model selected.
func (m *Manager) LoadEmbedding(name, model string) (*EmbeddingAdapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.running[name]; ok {
		if model != "" {
			p.adapter.SetEmbeddingModel(model)
		}
		return p.adapter, nil
	}

	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}

	slog.Info("starting embedding plugin", "name", name, "path", path)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  shared.Handshake,
		Plugins:          shared.PluginMap,
		Cmd:              exec.Command(path),
		Logger:           m.logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	embedder, err := dispenseEmbedding(client)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("%w: plugin %s: %w", types.ErrProviderNotAvailable, name, err)
	}

	adapter := NewEmbeddingAdapter(embedder)
	if model != "" {
		adapter.SetEmbeddingModel(model)
	}
	m.running[name] = &runningPlugin{path: path, client: client, adapter: adapter}

	slog.Info("embedding plugin ready", "name", name, "provider", embedder.Name(), "dimensions", embedder.Dimensions(), "model", model)
	return adapter, nil
}

func dispenseEmbedding(client *plugin.Client) (shared.EmbeddingProvider, error) {
	rpcClient, err := client.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	raw, err := rpcClient.Dispense(string(shared.PluginTypeEmbedding))
	if err != nil {
		return nil, fmt.Errorf("failed to dispense: %w", err)
	}
	embedder, ok := raw.(shared.EmbeddingProvider)
	if !ok {
		return nil, fmt.Errorf("does not implement the embedding protocol")
	}
	return embedder, nil
}

// Unload closes the named plugin and stops its process. Unknown names are ignored.
func (m *Manager) Unload(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stop(name)
}

// UnloadAll stops every running plugin.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.running {
		m.stop(name)
	}
}

func (m *Manager) stop(name string) {
	p, ok := m.running[name]
	if !ok {
		return
	}
	if err := p.adapter.Close(); err != nil {
		slog.Warn("failed to close plugin", "name", name, "error", err)
	}
	p.client.Kill()
	delete(m.running, name)
	slog.Debug("plugin stopped", "name", name)
}

// Loaded returns the names of running plugins, sorted.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
