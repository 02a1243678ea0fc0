package ocpp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/logger"
)

// Discovery method tags reported in the result metadata.
const (
	DiscoveryMethodConfiguration = "GetConfiguration"
	DiscoveryMethodProbe         = "probe_common_ids"
)

// DiscoveryConfig tunes the connector discovery waits.
type DiscoveryConfig struct {
	// BroadcastWait follows the connector-less StatusNotification trigger.
	BroadcastWait time.Duration
	// PerConnectorWait follows the per-id StatusNotification triggers.
	PerConnectorWait time.Duration
	// MeterValuesWait follows the per-id MeterValues triggers.
	MeterValuesWait time.Duration
	// ProbeWait follows the fallback probe triggers.
	ProbeWait time.Duration
	// ProbeIDs are the connector ids tried when the configured count is
	// unavailable.
	ProbeIDs []int
}

// DefaultDiscoveryConfig returns the default discovery settings.
func DefaultDiscoveryConfig() *DiscoveryConfig {
	return &DiscoveryConfig{
		BroadcastWait:    2 * time.Second,
		PerConnectorWait: 3 * time.Second,
		MeterValuesWait:  1500 * time.Millisecond,
		ProbeWait:        2 * time.Second,
		ProbeIDs:         []int{1, 2, 3, 4},
	}
}

// DiscoveryMetadata describes how a discovery run went.
type DiscoveryMetadata struct {
	TotalConnectors int       `json:"totalConnectors"`
	DiscoveryMethod string    `json:"discoveryMethod"`
	ConfiguredCount *int      `json:"configuredCount,omitempty"`
	DiscoveredCount int       `json:"discoveredCount"`
	LastUpdated     time.Time `json:"lastUpdated"`
	Errors          []string  `json:"errors,omitempty"`
}

// DiscoveryResult is the outcome of one discovery run.
type DiscoveryResult struct {
	Success    bool              `json:"success"`
	Connectors []ConnectorState  `json:"connectors"`
	Metadata   DiscoveryMetadata `json:"metadata"`
}

// Discoverer enumerates the connectors of a connected charge point by
// reading NumberOfConnectors and triggering StatusNotification and
// MeterValues reports, falling back to probing common connector ids.
type Discoverer struct {
	config *DiscoveryConfig
	logger *logger.Logger
}

// NewDiscoverer builds a discoverer.
func NewDiscoverer(config *DiscoveryConfig, log *logger.Logger) *Discoverer {
	if config == nil {
		config = DefaultDiscoveryConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Discoverer{config: config, logger: log}
}

// Discover runs the full discovery sequence against one session. Partial
// failures are recorded in the metadata errors, not returned.
func (d *Discoverer) Discover(ctx context.Context, s *Session) *DiscoveryResult {
	meta := DiscoveryMetadata{DiscoveryMethod: DiscoveryMethodConfiguration}

	configured, err := d.readConfiguredCount(ctx, s)
	if err != nil {
		d.logger.Warnf("GetConfiguration failed for %s: %v", s.ChargePointID, err)
		meta.Errors = append(meta.Errors, fmt.Sprintf("GetConfiguration failed: %v", err))
	}
	if configured > 0 {
		meta.ConfiguredCount = &configured
		s.SetNumberOfConnectors(configured)
	}

	// A connector-less trigger lets compliant stations report everything
	// at once, even when the configured count is unknown.
	if err := d.trigger(ctx, s, ocpp16.MessageTriggerStatusNotification, nil); err != nil {
		d.logger.Warnf("Broadcast StatusNotification trigger failed for %s: %v", s.ChargePointID, err)
		meta.Errors = append(meta.Errors, fmt.Sprintf("broadcast StatusNotification trigger failed: %v", err))
	}
	d.wait(ctx, d.config.BroadcastWait)

	if configured > 0 {
		d.triggerConfigured(ctx, s, configured, &meta)
	}

	if reported := s.Connectors(); len(reported) > 0 {
		for _, c := range reported {
			connectorID := c.ConnectorID
			if err := d.trigger(ctx, s, ocpp16.MessageTriggerMeterValues, &connectorID); err != nil {
				d.logger.Warnf("MeterValues trigger failed for %s/%d: %v", s.ChargePointID, connectorID, err)
				meta.Errors = append(meta.Errors, fmt.Sprintf("MeterValues trigger for connector %d failed: %v", connectorID, err))
			}
		}
		d.wait(ctx, d.config.MeterValuesWait)
	}

	// Probing is the last resort, only when nothing reported at all.
	if s.ConnectorCount() == 0 {
		meta.DiscoveryMethod = DiscoveryMethodProbe
		d.probeCommonIDs(ctx, s, &meta)
	}

	connectors := s.Connectors()
	meta.DiscoveredCount = len(connectors)
	meta.TotalConnectors = len(connectors)
	meta.LastUpdated = time.Now().UTC()

	if configured > 0 && len(connectors) != configured {
		meta.Errors = append(meta.Errors, fmt.Sprintf(
			"configured %d connectors but discovered %d", configured, len(connectors)))
	}

	return &DiscoveryResult{
		Success:    len(connectors) > 0,
		Connectors: connectors,
		Metadata:   meta,
	}
}

// readConfiguredCount reads the NumberOfConnectors configuration key.
func (d *Discoverer) readConfiguredCount(ctx context.Context, s *Session) (int, error) {
	req := ocpp16.GetConfigurationRequest{Key: []string{ocpp16.NumberOfConnectorsKey}}
	var resp ocpp16.GetConfigurationResponse
	if err := s.CallInto(ctx, ocpp16.ActionGetConfiguration, req, &resp, 0); err != nil {
		return 0, err
	}
	for _, kv := range resp.ConfigurationKey {
		if kv.Key != ocpp16.NumberOfConnectorsKey || kv.Value == nil {
			continue
		}
		n, err := strconv.Atoi(*kv.Value)
		if err != nil {
			return 0, fmt.Errorf("unparseable NumberOfConnectors %q", *kv.Value)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s not reported", ocpp16.NumberOfConnectorsKey)
}

// triggerConfigured requests a status report from each of connectors 1..n.
func (d *Discoverer) triggerConfigured(ctx context.Context, s *Session, n int, meta *DiscoveryMetadata) {
	for id := 1; id <= n; id++ {
		connectorID := id
		if err := d.trigger(ctx, s, ocpp16.MessageTriggerStatusNotification, &connectorID); err != nil {
			d.logger.Warnf("StatusNotification trigger failed for %s/%d: %v", s.ChargePointID, id, err)
			meta.Errors = append(meta.Errors, fmt.Sprintf("StatusNotification trigger for connector %d failed: %v", id, err))
		}
	}
	d.wait(ctx, d.config.PerConnectorWait)
}

// probeCommonIDs triggers StatusNotification for the usual connector ids
// and keeps whichever respond.
func (d *Discoverer) probeCommonIDs(ctx context.Context, s *Session, meta *DiscoveryMetadata) {
	for _, id := range d.config.ProbeIDs {
		connectorID := id
		if err := d.trigger(ctx, s, ocpp16.MessageTriggerStatusNotification, &connectorID); err != nil {
			d.logger.Warnf("Probe trigger failed for %s/%d: %v", s.ChargePointID, id, err)
			meta.Errors = append(meta.Errors, fmt.Sprintf("probe trigger for connector %d failed: %v", id, err))
		}
	}
	d.wait(ctx, d.config.ProbeWait)
}

func (d *Discoverer) trigger(ctx context.Context, s *Session, trigger ocpp16.MessageTrigger, connectorID *int) error {
	req := ocpp16.TriggerMessageRequest{RequestedMessage: trigger, ConnectorID: connectorID}
	var resp ocpp16.TriggerMessageResponse
	if err := s.CallInto(ctx, ocpp16.ActionTriggerMessage, req, &resp, 0); err != nil {
		return err
	}
	if resp.Status != ocpp16.TriggerMessageStatusAccepted {
		return fmt.Errorf("trigger answered %s", resp.Status)
	}
	return nil
}

// wait sleeps for the trigger responses to arrive, honoring cancellation.
func (d *Discoverer) wait(ctx context.Context, dur time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(dur):
	}
}
