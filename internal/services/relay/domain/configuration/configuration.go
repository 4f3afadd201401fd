// Package configuration owns the host configuration: the chain-wide tunables
// every other parachain subsystem reads.
//
// Governance stages changes as a pending configuration. The pending value
// only becomes active at a session boundary, when the initializer calls
// OnNewSession, so every subsystem observes one consistent configuration for
// the whole session.
package configuration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// HostConfiguration is an immutable snapshot of chain-wide parameters.
// Two snapshots are equal when every field is equal.
type HostConfiguration struct {
	// MaxCodeSize caps the byte length of parachain validation code.
	MaxCodeSize uint32 `yaml:"max_code_size" json:"max_code_size"`
	// MaxHeadDataSize caps the byte length of a parachain head.
	MaxHeadDataSize uint32 `yaml:"max_head_data_size" json:"max_head_data_size"`
	// MaxPovSize caps the proof-of-validity size of a candidate.
	MaxPovSize uint32 `yaml:"max_pov_size" json:"max_pov_size"`
	// ValidationUpgradeFrequency is the minimum number of blocks between code upgrades.
	ValidationUpgradeFrequency primitives.BlockNumber `yaml:"validation_upgrade_frequency" json:"validation_upgrade_frequency"`
	// ValidationUpgradeDelay is the delay before a signalled upgrade is applied.
	ValidationUpgradeDelay primitives.BlockNumber `yaml:"validation_upgrade_delay" json:"validation_upgrade_delay"`
	// ParathreadCores is the number of availability cores reserved for parathreads.
	ParathreadCores uint32 `yaml:"parathread_cores" json:"parathread_cores"`
	// GroupRotationFrequency is how many blocks a validator group stays on a core.
	GroupRotationFrequency primitives.BlockNumber `yaml:"group_rotation_frequency" json:"group_rotation_frequency"`
	// ChainAvailabilityPeriod bounds how long a parachain candidate may wait for availability.
	ChainAvailabilityPeriod primitives.BlockNumber `yaml:"chain_availability_period" json:"chain_availability_period"`
	// MaxValidatorsPerCore caps validator group size. Zero means no cap.
	MaxValidatorsPerCore uint32 `yaml:"max_validators_per_core" json:"max_validators_per_core"`
	// DisputePeriod is how many past sessions keep their session info.
	DisputePeriod primitives.SessionIndex `yaml:"dispute_period" json:"dispute_period"`
	// NoShowSlots is the number of delay tranches before an approval no-show.
	NoShowSlots uint32 `yaml:"no_show_slots" json:"no_show_slots"`
	// NDelayTranches is the number of approval delay tranches.
	NDelayTranches uint32 `yaml:"n_delay_tranches" json:"n_delay_tranches"`
	// ZerothDelayTrancheWidth is the width of the first approval tranche.
	ZerothDelayTrancheWidth uint32 `yaml:"zeroth_delay_tranche_width" json:"zeroth_delay_tranche_width"`
	// NeededApprovals is the number of approvals required for finality.
	NeededApprovals uint32 `yaml:"needed_approvals" json:"needed_approvals"`
	// RelayVRFModuloSamples is the number of VRF modulo samples per validator.
	RelayVRFModuloSamples uint32 `yaml:"relay_vrf_modulo_samples" json:"relay_vrf_modulo_samples"`
	// MaxDownwardMessageSize caps a single downward message.
	MaxDownwardMessageSize uint32 `yaml:"max_downward_message_size" json:"max_downward_message_size"`
	// MaxUpwardQueueCount caps the number of queued upward messages per para.
	MaxUpwardQueueCount uint32 `yaml:"max_upward_queue_count" json:"max_upward_queue_count"`
	// MaxUpwardQueueSize caps the total queued upward bytes per para.
	MaxUpwardQueueSize uint32 `yaml:"max_upward_queue_size" json:"max_upward_queue_size"`
	// MaxUpwardMessageSize caps a single upward message.
	MaxUpwardMessageSize uint32 `yaml:"max_upward_message_size" json:"max_upward_message_size"`
	// HrmpMaxParachainOutboundChannels caps open outbound channels per parachain.
	HrmpMaxParachainOutboundChannels uint32 `yaml:"hrmp_max_parachain_outbound_channels" json:"hrmp_max_parachain_outbound_channels"`
	// HrmpChannelMaxCapacity caps the message capacity of one channel.
	HrmpChannelMaxCapacity uint32 `yaml:"hrmp_channel_max_capacity" json:"hrmp_channel_max_capacity"`
	// HrmpChannelMaxMessageSize caps a single horizontal message.
	HrmpChannelMaxMessageSize uint32 `yaml:"hrmp_channel_max_message_size" json:"hrmp_channel_max_message_size"`
}

// Default returns the configuration used when a genesis file sets none.
func Default() HostConfiguration {
	return HostConfiguration{
		MaxCodeSize:                      5 * 1024 * 1024,
		MaxHeadDataSize:                  32 * 1024,
		MaxPovSize:                       5 * 1024 * 1024,
		ValidationUpgradeFrequency:       10,
		ValidationUpgradeDelay:           5,
		ParathreadCores:                  0,
		GroupRotationFrequency:           10,
		ChainAvailabilityPeriod:          5,
		MaxValidatorsPerCore:             5,
		DisputePeriod:                    6,
		NoShowSlots:                      2,
		NDelayTranches:                   40,
		ZerothDelayTrancheWidth:          0,
		NeededApprovals:                  2,
		RelayVRFModuloSamples:            2,
		MaxDownwardMessageSize:           64 * 1024,
		MaxUpwardQueueCount:              8,
		MaxUpwardQueueSize:               1024 * 1024,
		MaxUpwardMessageSize:             64 * 1024,
		HrmpMaxParachainOutboundChannels: 10,
		HrmpChannelMaxCapacity:           8,
		HrmpChannelMaxMessageSize:        64 * 1024,
	}
}

var (
	// ErrInvalidConfiguration indicates a configuration that violates a consistency rule.
	ErrInvalidConfiguration = errors.New("invalid host configuration")
)

// Validate checks the consistency rules a configuration must satisfy before
// it can be staged.
func (c HostConfiguration) Validate() error {
	if c.GroupRotationFrequency == 0 {
		return fmt.Errorf("%w: group rotation frequency must be non-zero", ErrInvalidConfiguration)
	}
	if c.ChainAvailabilityPeriod == 0 {
		return fmt.Errorf("%w: chain availability period must be non-zero", ErrInvalidConfiguration)
	}
	if c.NoShowSlots == 0 {
		return fmt.Errorf("%w: no show slots must be non-zero", ErrInvalidConfiguration)
	}
	if c.MaxUpwardMessageSize > c.MaxUpwardQueueSize {
		return fmt.Errorf("%w: max upward message size exceeds max upward queue size", ErrInvalidConfiguration)
	}
	return nil
}

// Patch overwrites the fields named by their json keys in fields. Unknown
// keys and values that do not fit the field type fail the whole patch and
// leave c unchanged.
func (c *HostConfiguration) Patch(fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: patch has no fields", ErrInvalidConfiguration)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: encode patch: %v", ErrInvalidConfiguration, err)
	}
	next := *c
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	*c = next
	return nil
}

// Reader exposes the active configuration to the subsystems that depend on it.
type Reader interface {
	Config() HostConfiguration
}

// Module stores the active and pending host configuration.
type Module struct {
	active  HostConfiguration
	pending *HostConfiguration
}

// New creates the module with a genesis configuration.
func New(genesis HostConfiguration) (*Module, error) {
	if err := genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis configuration: %w", err)
	}
	return &Module{active: genesis}, nil
}

// Config returns the active configuration.
func (m *Module) Config() HostConfiguration {
	return m.active
}

// Pending returns the configuration staged for the next session, if any.
func (m *Module) Pending() (HostConfiguration, bool) {
	if m.pending == nil {
		return HostConfiguration{}, false
	}
	return *m.pending, true
}

// SetPending stages cfg to become active at the next session change.
func (m *Module) SetPending(cfg HostConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg == m.active {
		m.pending = nil
		return nil
	}
	m.pending = &cfg
	return nil
}

// Update stages a change derived from the pending configuration, or from the
// active one when nothing is pending yet.
func (m *Module) Update(mutate func(*HostConfiguration)) error {
	if mutate == nil {
		return errors.New("configuration update is required")
	}
	base := m.active
	if m.pending != nil {
		base = *m.pending
	}
	mutate(&base)
	return m.SetPending(base)
}

// Initialize performs block-start bookkeeping.
func (m *Module) Initialize(context.Context, primitives.BlockNumber) primitives.Weight {
	return 0
}

// Finalize performs block-end bookkeeping.
func (m *Module) Finalize(context.Context) {}

// OnNewSession promotes the pending configuration. It takes the raw validator
// sets rather than a notification because the notification carries the
// configuration this hook produces.
func (m *Module) OnNewSession(_ context.Context, _ []primitives.ValidatorID, _ []primitives.ValidatorID) {
	if m.pending == nil {
		return
	}
	m.active = *m.pending
	m.pending = nil
}
