// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"axonflow/campaign-gateway/shared/logger"
)

// toolCaller is the per-server surface the registry drives.
type toolCaller interface {
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error)
	Stop() error
}

var _ toolCaller = (*Client)(nil)

// Registry routes tool names to their configured servers. A server's
// client is created lazily the first time one of its tools is called
// and reused afterwards.
type Registry struct {
	log *logger.Logger

	mu      sync.Mutex
	servers map[string]ServerConfig
	byTool  map[string]string
	clients map[string]toolCaller

	newClient func(ServerConfig) toolCaller
}

// NewRegistry indexes the configured servers by the tools they
// provide. When two servers claim the same tool the first keeps it.
func NewRegistry(configs []ServerConfig, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.New("mcp")
	}

	r := &Registry{
		log:     log,
		servers: make(map[string]ServerConfig),
		byTool:  make(map[string]string),
		clients: make(map[string]toolCaller),
	}
	r.newClient = func(cfg ServerConfig) toolCaller { return NewClient(cfg, log) }

	for _, cfg := range configs {
		r.servers[cfg.Name] = cfg
		for _, tool := range cfg.Tools {
			if existing, ok := r.byTool[tool]; ok {
				log.Warn("", "", "Tool provided by multiple servers", map[string]interface{}{
					"tool":    tool,
					"kept":    existing,
					"ignored": cfg.Name,
				})
				continue
			}
			r.byTool[tool] = cfg.Name
		}
	}
	return r
}

// ExecuteTool routes the call to the server providing the tool.
func (r *Registry) ExecuteTool(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error) {
	r.mu.Lock()
	serverName, ok := r.byTool[tool]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	client, ok := r.clients[serverName]
	if !ok {
		client = r.newClient(r.servers[serverName])
		r.clients[serverName] = client
	}
	r.mu.Unlock()

	return client.ExecuteTool(ctx, tool, args)
}

// Tools lists the tool names the registry can route, sorted.
func (r *Registry) Tools() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tools := make([]string, 0, len(r.byTool))
	for tool := range r.byTool {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}

// Shutdown stops every client that was started.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	clients := make([]toolCaller, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.clients = make(map[string]toolCaller)
	r.mu.Unlock()

	for _, client := range clients {
		_ = client.Stop()
	}
}
