// entropy.go: Pluggable entropy providers for helper generation
//
// This module provides a plugin-based architecture powered by github.com/agilira/go-plugins
// for sourcing the randomness consumed by Generate (keys, masks and salts) from
// hardware RNGs, HSMs or remote entropy services. In-process providers are
// registered with RegisterProvider; any other name is dispatched as an
// EntropyRequest through the go-plugins manager, which adds circuit breaking
// and health monitoring for out-of-process plugins. EntropyManager.Reader turns
// either kind into the io.Reader expected by Params.Random.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	goplugins "github.com/agilira/go-plugins"
	"github.com/google/uuid"
)

const defaultEntropyTimeout = 5 * time.Second

// EntropyCapability represents a feature an entropy provider advertises
type EntropyCapability string

const (
	CapabilityHardwareRNG   EntropyCapability = "hardware_rng"   // Physical noise source
	CapabilityConditioned   EntropyCapability = "conditioned"    // Output passed through a DRBG/conditioner
	CapabilityHealthTests   EntropyCapability = "health_tests"   // Continuous SP 800-90B health tests
	CapabilityRemote        EntropyCapability = "remote"         // Network service (latency applies)
	CapabilityFIPSValidated EntropyCapability = "fips_validated" // FIPS 140 validated module
)

// EntropyProvider defines the interface that all entropy plugins must implement
type EntropyProvider interface {
	// Provider Information
	Name() string                      // Provider name (e.g., "pkcs11", "tpm", "rdrand")
	Version() string                   // Provider version
	Capabilities() []EntropyCapability // Supported capabilities

	// Lifecycle Management
	Initialize(ctx context.Context, config map[string]interface{}) error // Initialize provider connection
	Close() error                                                        // Clean shutdown and resource cleanup
	IsHealthy() bool                                                     // Health check status

	// GenerateRandom returns exactly length random bytes.
	GenerateRandom(ctx context.Context, length int) ([]byte, error)
}

// EntropyManagerConfig provides configuration for the entropy manager
type EntropyManagerConfig struct {
	DefaultProvider   string                            `json:"default_provider"`   // Default provider to use
	ProviderConfigs   map[string]map[string]interface{} `json:"provider_configs"`   // Per-provider configurations
	FailoverEnabled   bool                              `json:"failover_enabled"`   // Enable automatic failover
	FailoverProviders []string                          `json:"failover_providers"` // Failover provider priority order
	OperationTimeout  time.Duration                     `json:"operation_timeout"`  // Timeout per GenerateRandom call
}

// EntropyRequest represents a request to an entropy provider plugin
type EntropyRequest struct {
	Length     int                    `json:"length"`     // Number of bytes requested
	Parameters map[string]interface{} `json:"parameters"` // Provider-specific parameters
}

// EntropyResponse represents a response from an entropy provider plugin
type EntropyResponse struct {
	Success  bool                   `json:"success"`  // Operation success status
	Data     []byte                 `json:"data"`     // Random bytes
	Error    string                 `json:"error"`    // Error message (if any)
	Metadata map[string]interface{} `json:"metadata"` // Response metadata
}

// Common entropy errors with proper error codes for auditing
var (
	ErrEntropyNotInitialized    = goerrors.New("ENTROPY_001", "Entropy provider not initialized")
	ErrEntropyProviderNotFound  = goerrors.New("ENTROPY_002", "Entropy provider not found")
	ErrEntropyHealthCheckFailed = goerrors.New("ENTROPY_003", "Entropy provider health check failed")
	ErrEntropyShortRead         = goerrors.New("ENTROPY_004", "Entropy provider returned fewer bytes than requested")
	ErrEntropyInvalidParameters = goerrors.New("ENTROPY_005", "Invalid entropy request parameters")
)

// EntropyManager manages entropy providers using the go-plugins framework
type EntropyManager struct {
	mu              sync.RWMutex
	pluginManager   *goplugins.Manager[EntropyRequest, EntropyResponse] // Plugin manager for out-of-process providers
	activeProviders map[string]EntropyProvider                          // Active provider instances
	defaultProvider string                                              // Default provider name
	config          *EntropyManagerConfig                               // Manager configuration
}

// NewEntropyManager creates a new entropy manager with plugin support
func NewEntropyManager(config *EntropyManagerConfig, pluginManager *goplugins.Manager[EntropyRequest, EntropyResponse]) (*EntropyManager, error) {
	if config == nil {
		config = &EntropyManagerConfig{
			FailoverEnabled:  false,
			OperationTimeout: defaultEntropyTimeout,
		}
	}

	return &EntropyManager{
		pluginManager:   pluginManager,
		activeProviders: make(map[string]EntropyProvider),
		config:          config,
	}, nil
}

// PluginManager returns the plugin manager the entropy manager was created with, if any.
func (m *EntropyManager) PluginManager() *goplugins.Manager[EntropyRequest, EntropyResponse] {
	return m.pluginManager
}

// RegisterProvider initializes and registers an entropy provider
func (m *EntropyManager) RegisterProvider(name string, provider EntropyProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	ctx := context.Background()
	if timeout := m.config.OperationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	providerConfig := m.config.ProviderConfigs[name]
	if err := provider.Initialize(ctx, providerConfig); err != nil {
		return fmt.Errorf("failed to initialize entropy provider %s: %w", name, err)
	}

	m.activeProviders[name] = provider

	// Set as default if it's the first provider or explicitly configured
	if m.defaultProvider == "" || m.config.DefaultProvider == name {
		m.defaultProvider = name
	}

	return nil
}

// GetProvider returns a healthy in-process entropy provider by name ("" for the default)
func (m *EntropyManager) GetProvider(name string) (EntropyProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProviderLocked(name)
}

func (m *EntropyManager) getProviderLocked(name string) (EntropyProvider, error) {
	if name == "" {
		name = m.defaultProvider
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no default provider registered", ErrEntropyNotInitialized)
	}

	provider, exists := m.activeProviders[name]
	if !exists {
		return nil, fmt.Errorf("%w: provider %s", ErrEntropyProviderNotFound, name)
	}

	if !provider.IsHealthy() {
		return nil, fmt.Errorf("%w: provider %s", ErrEntropyHealthCheckFailed, name)
	}

	return provider, nil
}

// Reader returns an io.Reader drawing from the named provider ("" for the
// default), suitable for Params.Random. When failover is enabled, reads that
// fail on the named provider are retried on the failover providers in order.
//
// Example:
//
//	random, err := manager.Reader("tpm")
//	if err != nil {
//		log.Fatal(err)
//	}
//	extractor, err := fuzzy.NewExtractor(32, 4, &fuzzy.Params{
//		LockerParams: fuzzy.LockerParams{Random: random},
//	})
func (m *EntropyManager) Reader(name string) (io.Reader, error) {
	_, err := m.GetProvider(name)
	if err != nil && !m.hasPlugin(name, err) {
		return nil, err
	}
	return &entropyReader{manager: m, name: name}, nil
}

// hasPlugin reports whether a name missing from the in-process providers is
// served by the plugin manager.
func (m *EntropyManager) hasPlugin(name string, lookupErr error) bool {
	if m.pluginManager == nil || name == "" || !errors.Is(lookupErr, ErrEntropyProviderNotFound) {
		return false
	}
	_, err := m.pluginManager.GetPlugin(name)
	return err == nil
}

// Close shuts down all entropy providers
func (m *EntropyManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	for name, provider := range m.activeProviders {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close entropy provider %s: %w", name, err))
		}
	}
	m.activeProviders = make(map[string]EntropyProvider)
	m.defaultProvider = ""

	if len(errs) > 0 {
		return fmt.Errorf("failed to close some entropy providers: %v", errs)
	}

	return nil
}

// Generate draws length bytes from the named provider ("" for the default),
// falling back to the failover providers when enabled.
func (m *EntropyManager) Generate(name string, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: length must be positive, got %d", ErrEntropyInvalidParameters, length)
	}

	m.mu.RLock()
	candidates := []string{name}
	if m.config.FailoverEnabled {
		candidates = append(candidates, m.config.FailoverProviders...)
	}
	timeout := m.config.OperationTimeout
	m.mu.RUnlock()

	var lastErr error
	for _, candidate := range candidates {
		data, err := m.generateFrom(candidate, length, timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (m *EntropyManager) generateFrom(name string, length int, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = defaultEntropyTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	provider, err := m.GetProvider(name)
	if err != nil {
		if m.hasPlugin(name, err) {
			return m.generateFromPlugin(ctx, name, length, timeout)
		}
		return nil, err
	}

	data, err := provider.GenerateRandom(ctx, length)
	if err != nil {
		return nil, fmt.Errorf("entropy provider %s: %w", provider.Name(), err)
	}
	if len(data) < length {
		return nil, fmt.Errorf("%w: provider %s returned %d of %d bytes", ErrEntropyShortRead, provider.Name(), len(data), length)
	}
	return data[:length], nil
}

// generateFromPlugin sends an EntropyRequest to an out-of-process plugin.
// Retries are left to the failover list, so each plugin is tried once.
func (m *EntropyManager) generateFromPlugin(ctx context.Context, name string, length int, timeout time.Duration) ([]byte, error) {
	execCtx := goplugins.ExecutionContext{
		RequestID: uuid.NewString(),
		Timeout:   timeout,
	}
	request := EntropyRequest{Length: length, Parameters: m.config.ProviderConfigs[name]}

	resp, err := m.pluginManager.ExecuteWithOptions(ctx, name, execCtx, request)
	if err != nil {
		return nil, fmt.Errorf("entropy plugin %s: %w", name, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("entropy plugin %s: %s", name, resp.Error)
	}
	if len(resp.Data) < length {
		Zeroize(resp.Data)
		return nil, fmt.Errorf("%w: plugin %s returned %d of %d bytes", ErrEntropyShortRead, name, len(resp.Data), length)
	}
	return resp.Data[:length], nil
}

// entropyReader adapts an EntropyManager provider to io.Reader.
type entropyReader struct {
	manager *EntropyManager
	name    string
}

func (r *entropyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data, err := r.manager.Generate(r.name, len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	Zeroize(data)
	return n, nil
}
