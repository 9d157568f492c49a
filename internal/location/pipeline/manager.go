package pipeline

import (
	"context"
	"log"
	"sync"

	"backend-attendhub/internal/location/fusion"
	"backend-attendhub/internal/location/gpsfilter"
	"backend-attendhub/internal/location/pdr"
)

// ManagerConfig carries the per-component tunings applied to every device
// pipeline the manager creates.
type ManagerConfig struct {
	Pipeline Config
	Filter   gpsfilter.Config
	Tracker  pdr.TrackerConfig
	Env      fusion.EnvironmentConfig
	Fusion   fusion.Config
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Pipeline: DefaultConfig(),
		Filter:   gpsfilter.DefaultConfig(),
		Tracker:  pdr.DefaultTrackerConfig(),
		Env:      fusion.DefaultEnvironmentConfig(),
		Fusion:   fusion.DefaultConfig(),
	}
}

// Manager owns one pipeline per device, created lazily on first contact.
type Manager struct {
	cfg       ManagerConfig
	ctx       context.Context
	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:       cfg,
		ctx:       ctx,
		pipelines: map[string]*Pipeline{},
	}
}

// Get returns the device's pipeline, creating and starting it on first use.
// A tracker init failure degrades that device to GPS-only fusion.
func (m *Manager) Get(deviceID string) *Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pipelines[deviceID]; ok {
		return p
	}

	tracker, err := pdr.NewTracker(m.cfg.Tracker)
	if err != nil {
		log.Printf("device %s: inertial tracker unavailable, gps-only: %v", deviceID, err)
		tracker = nil
	}
	engine := fusion.NewEngine(m.cfg.Fusion, fusion.NewEnvironmentDetector(m.cfg.Env), tracker)
	p := New(m.cfg.Pipeline, gpsfilter.New(m.cfg.Filter), engine)
	p.Start(m.ctx)
	m.pipelines[deviceID] = p
	return p
}

// Drop stops and removes a device's pipeline, typically at session end.
func (m *Manager) Drop(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipelines[deviceID]; ok {
		p.Stop()
		delete(m.pipelines, deviceID)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pipelines)
}
