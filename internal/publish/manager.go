package publish

import (
	"fmt"

	"go.uber.org/zap"
)

// Manager is the platform-keyed publisher registry.
type Manager struct {
	publishers map[string]Publisher
	logger     *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]Publisher),
		logger:     logger,
	}
}

func (m *Manager) Register(publisher Publisher) error {
	platform := publisher.Platform()
	if _, exists := m.publishers[platform]; exists {
		return fmt.Errorf("publisher for platform %s already registered", platform)
	}

	m.publishers[platform] = publisher
	m.logger.Info("Publisher registered", zap.String("platform", platform))
	return nil
}

func (m *Manager) Get(platform string) (Publisher, error) {
	publisher, exists := m.publishers[platform]
	if !exists {
		return nil, fmt.Errorf("publisher for platform %s not found", platform)
	}
	return publisher, nil
}

// Platforms lists the registered platform names.
func (m *Manager) Platforms() []string {
	platforms := make([]string, 0, len(m.publishers))
	for platform := range m.publishers {
		platforms = append(platforms, platform)
	}
	return platforms
}
