// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the node's operator-facing tunables from a
// YAML/TOML/JSON file, environment variables, and built-in defaults,
// using the spf13/viper + spf13/cast stack. Per-subsystem defaults
// (HNSW graph parameters, the
// governance quorum/approval split, fee-market bounds, ...) are owned
// by their packages' own DefaultConfig functions; this package's
// defaults simply mirror them so a bare node starts with the values
// already baked into the code, and an operator-supplied file or
// environment variable overrides only what it names.
package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/luxfi/luxtensor/blockproducer"
	"github.com/luxfi/luxtensor/governance"
	"github.com/luxfi/luxtensor/hnsw"
	"github.com/luxfi/luxtensor/p2p"
	"github.com/luxfi/luxtensor/pos"
	"github.com/luxfi/luxtensor/tokenomics"
	"github.com/luxfi/luxtensor/types"
	"github.com/luxfi/luxtensor/weightconsensus"

	"github.com/luxfi/geth/common"
)

// envPrefix namespaces environment-variable overrides, e.g.
// LUXTENSOR_P2P_FAR_AHEAD_THRESHOLD overrides p2p.far_ahead_threshold.
const envPrefix = "LUXTENSOR"

// Config is the node's full operator-facing tunable surface. Fields
// use plain scalar/string types rather than the domain's own *big.Int
// or common.Address so viper can decode them directly from a config
// file; the To*Config methods convert into each subsystem's real
// typed Config.
type Config struct {
	ChainID        uint64 `mapstructure:"chain_id"`
	DataDir        string `mapstructure:"data_dir"`
	ListenAddr     string `mapstructure:"listen_addr"`
	GenesisHash    string `mapstructure:"genesis_hash"`
	DAOAddress     string `mapstructure:"dao_address"`
	EpochLength    uint64 `mapstructure:"epoch_length"`
	MaxTxsPerBlock int    `mapstructure:"max_txs_per_block"`
	BlockGasLimit  uint64 `mapstructure:"block_gas_limit"`

	P2P             P2PConfig             `mapstructure:"p2p"`
	Storage         StorageConfig         `mapstructure:"storage"`
	HNSW            HNSWConfig            `mapstructure:"hnsw"`
	Tokenomics      TokenomicsConfig      `mapstructure:"tokenomics"`
	Governance      GovernanceConfig      `mapstructure:"governance"`
	WeightConsensus WeightConsensusConfig `mapstructure:"weight_consensus"`
	Slashing        SlashingConfig        `mapstructure:"slashing"`
	LongRange       LongRangeConfig       `mapstructure:"long_range"`
}

// P2PConfig mirrors p2p.Config plus the sync/clock-drift/finality
// constants p2p currently hardcodes.
type P2PConfig struct {
	NormalRatePerSec   float64 `mapstructure:"normal_rate_per_sec"`
	NormalBurst        int     `mapstructure:"normal_burst"`
	FarAheadRatePerSec float64 `mapstructure:"far_ahead_rate_per_sec"`
	FarAheadBurst      int     `mapstructure:"far_ahead_burst"`
	MaxSyncBlocks      int     `mapstructure:"max_sync_blocks"`
	FarAheadThreshold  uint64  `mapstructure:"far_ahead_threshold"`
	MaxClockDriftSecs  int64   `mapstructure:"max_clock_drift_secs"`
	FinalityDepth      uint64  `mapstructure:"finality_depth"`
}

// StorageConfig mirrors the checkpoint/retention/pruning strides
// storage.go currently hardcodes.
type StorageConfig struct {
	CheckpointInterval uint64 `mapstructure:"checkpoint_interval"`
	KeepReceiptsBlocks uint64 `mapstructure:"keep_receipts_blocks"`
	PruningInterval    uint64 `mapstructure:"pruning_interval"`
}

// HNSWConfig mirrors the weight-graph index parameters hnsw.go
// currently hardcodes as package constants.
type HNSWConfig struct {
	M              int `mapstructure:"m"`
	M0             int `mapstructure:"m0"`
	EfConstruction int `mapstructure:"ef_construction"`
	EfSearch       int `mapstructure:"ef_search"`
	MaxLayer       int `mapstructure:"max_layer"`
	MaxCapacity    int `mapstructure:"max_capacity"`
}

// TokenomicsConfig mirrors tokenomics.HalvingSchedule, FeeMarket and
// BurnManager.
type TokenomicsConfig struct {
	InitialRewardTokens   float64 `mapstructure:"initial_reward_tokens"`
	MinimumRewardTokens   float64 `mapstructure:"minimum_reward_tokens"`
	HalvingIntervalBlocks uint64  `mapstructure:"halving_interval_blocks"`
	MaxHalvings           uint32  `mapstructure:"max_halvings"`

	MinBaseFeeWei  string `mapstructure:"min_base_fee_wei"`
	MaxBaseFeeWei  string `mapstructure:"max_base_fee_wei"`
	TargetGasUsed  uint64 `mapstructure:"target_gas_used"`

	TxFeeBurnRateBps    uint16 `mapstructure:"tx_fee_burn_rate_bps"`
	SubnetBurnRateBps   uint16 `mapstructure:"subnet_burn_rate_bps"`
	SlashingBurnRateBps uint16 `mapstructure:"slashing_burn_rate_bps"`
}

// GovernanceConfig mirrors governance.Config.
type GovernanceConfig struct {
	MinProposalStakeWei     string `mapstructure:"min_proposal_stake_wei"`
	VotingPeriodBlocks      uint64 `mapstructure:"voting_period_blocks"`
	TimelockBlocks          uint64 `mapstructure:"timelock_blocks"`
	EmergencyTimelockBlocks uint64 `mapstructure:"emergency_timelock_blocks"`
	QuorumBps               uint16 `mapstructure:"quorum_bps"`
	ApprovalThresholdBps    uint16 `mapstructure:"approval_threshold_bps"`
	MaxProposalAgeBlocks    uint64 `mapstructure:"max_proposal_age_blocks"`
}

// WeightConsensusConfig mirrors weightconsensus.Config.
type WeightConsensusConfig struct {
	MinValidators            int     `mapstructure:"min_validators"`
	ApprovalThresholdPercent uint8   `mapstructure:"approval_threshold_percent"`
	ProposalTimeoutBlocks    uint64  `mapstructure:"proposal_timeout_blocks"`
	ProposalCooldownBlocks   uint64  `mapstructure:"proposal_cooldown_blocks"`
	CommitteeSize            int     `mapstructure:"committee_size"`
	MaxRecordsPerVoter       int     `mapstructure:"max_records_per_voter"`
	CollusionAgreementRate   float64 `mapstructure:"collusion_agreement_rate"`
	CollusionInflationFactor uint64  `mapstructure:"collusion_inflation_factor"`
}

// SlashingConfig mirrors pos's slashing penalty
// (pos.DefaultSlashPenaltyBps).
type SlashingConfig struct {
	PenaltyBps uint16 `mapstructure:"penalty_bps"`
}

// LongRangeConfig mirrors pos.WeakSubjectivityWindow.
type LongRangeConfig struct {
	WeakSubjectivityWindow uint64 `mapstructure:"weak_subjectivity_window"`
}

// Defaults returns a Config populated entirely from the values each
// subsystem package already hardcodes, so Load with no file and no
// environment overrides reproduces the node's built-in behavior
// exactly.
func Defaults() Config {
	halving := tokenomics.DefaultHalvingSchedule()
	initialReward, _ := new(big.Float).Quo(
		new(big.Float).SetInt(halving.InitialReward),
		new(big.Float).SetInt(tokenomics.OneToken),
	).Float64()
	minimumReward, _ := new(big.Float).Quo(
		new(big.Float).SetInt(halving.MinimumReward),
		new(big.Float).SetInt(tokenomics.OneToken),
	).Float64()

	burn := tokenomics.NewBurnManager()
	gov := governance.DefaultConfig()
	wc := weightconsensus.DefaultConfig()
	p2pDefaults := p2p.DefaultConfig(1)

	return Config{
		ChainID:        1,
		DataDir:        "./data",
		ListenAddr:     "0.0.0.0:9651",
		GenesisHash:    types.Hash{}.Hex(),
		DAOAddress:     types.ZeroAddress.Hex(),
		EpochLength:    10_000,
		MaxTxsPerBlock: 2_000,
		BlockGasLimit:  30_000_000,

		P2P: P2PConfig{
			NormalRatePerSec:   p2pDefaults.NormalRatePerSec,
			NormalBurst:        p2pDefaults.NormalBurst,
			FarAheadRatePerSec: p2pDefaults.FarAheadRatePerSec,
			FarAheadBurst:      p2pDefaults.FarAheadBurst,
			MaxSyncBlocks:      p2p.MaxSyncBlocks,
			FarAheadThreshold:  p2p.FarAheadThreshold,
			MaxClockDriftSecs:  int64(p2p.MaxClockDrift.Seconds()),
			FinalityDepth:      p2p.FinalityDepth,
		},
		Storage: StorageConfig{
			CheckpointInterval: uint64(storageCheckpointInterval),
			KeepReceiptsBlocks: uint64(storageKeepReceiptsBlocks),
			PruningInterval:    uint64(storagePruningInterval),
		},
		HNSW: HNSWConfig{
			M:              hnsw.M,
			M0:             hnsw.M0,
			EfConstruction: hnsw.EfConstruction,
			EfSearch:       hnsw.EfSearch,
			MaxLayer:       hnsw.MaxLayer,
			MaxCapacity:    hnsw.MaxCapacity,
		},
		Tokenomics: TokenomicsConfig{
			InitialRewardTokens:   initialReward,
			MinimumRewardTokens:   minimumReward,
			HalvingIntervalBlocks: uint64(halving.HalvingInterval),
			MaxHalvings:           halving.MaxHalvings,
			MinBaseFeeWei:         "1000000000",
			MaxBaseFeeWei:         "1000000000000",
			TargetGasUsed:         15_000_000,
			TxFeeBurnRateBps:      uint16(burn.TxFeeBurnRateBps),
			SubnetBurnRateBps:     uint16(burn.SubnetBurnRateBps),
			SlashingBurnRateBps:   uint16(burn.SlashingBurnRateBps),
		},
		Governance: GovernanceConfig{
			MinProposalStakeWei:     gov.MinProposalStake.String(),
			VotingPeriodBlocks:      uint64(gov.VotingPeriodBlocks),
			TimelockBlocks:          uint64(gov.TimelockBlocks),
			EmergencyTimelockBlocks: uint64(gov.EmergencyTimelockBlocks),
			QuorumBps:               uint16(gov.QuorumBps),
			ApprovalThresholdBps:    uint16(gov.ApprovalThresholdBps),
			MaxProposalAgeBlocks:    uint64(gov.MaxProposalAgeBlocks),
		},
		WeightConsensus: WeightConsensusConfig{
			MinValidators:            wc.MinValidators,
			ApprovalThresholdPercent: wc.ApprovalThresholdPercent,
			ProposalTimeoutBlocks:    uint64(wc.ProposalTimeoutBlocks),
			ProposalCooldownBlocks:   uint64(wc.ProposalCooldownBlocks),
			CommitteeSize:            wc.CommitteeSize,
			MaxRecordsPerVoter:       wc.MaxRecordsPerVoter,
			CollusionAgreementRate:   wc.CollusionAgreementRate,
			CollusionInflationFactor: wc.CollusionInflationFactor,
		},
		Slashing: SlashingConfig{
			PenaltyBps: uint16(pos.DefaultSlashPenaltyBps),
		},
		LongRange: LongRangeConfig{
			WeakSubjectivityWindow: uint64(pos.WeakSubjectivityWindow),
		},
	}
}

// storage.go's retention constants are typed types.Height values;
// their values are copied here as untyped constants for the plain
// uint64 Config fields.
const (
	storageCheckpointInterval = 4096
	storageKeepReceiptsBlocks = 90_000
	storagePruningInterval    = 1024
)

// Load builds a Config from, in ascending priority: the defaults
// every subsystem package bakes in, an optional config file at path
// (YAML, TOML, or JSON, detected by extension), and environment
// variables prefixed LUXTENSOR_ (nested fields join with underscores,
// e.g. LUXTENSOR_P2P_FAR_AHEAD_THRESHOLD). An empty path skips the file
// read entirely; a missing file at a non-empty path is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	setDefaults(v, defaults)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// setDefaults flattens defaults' fields into v one key at a time so
// viper's config-file/env merge sees a baseline for every field, even
// ones the file or environment never mentions.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("chain_id", d.ChainID)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("genesis_hash", d.GenesisHash)
	v.SetDefault("dao_address", d.DAOAddress)
	v.SetDefault("epoch_length", d.EpochLength)
	v.SetDefault("max_txs_per_block", d.MaxTxsPerBlock)
	v.SetDefault("block_gas_limit", d.BlockGasLimit)

	v.SetDefault("p2p.normal_rate_per_sec", d.P2P.NormalRatePerSec)
	v.SetDefault("p2p.normal_burst", d.P2P.NormalBurst)
	v.SetDefault("p2p.far_ahead_rate_per_sec", d.P2P.FarAheadRatePerSec)
	v.SetDefault("p2p.far_ahead_burst", d.P2P.FarAheadBurst)
	v.SetDefault("p2p.max_sync_blocks", d.P2P.MaxSyncBlocks)
	v.SetDefault("p2p.far_ahead_threshold", d.P2P.FarAheadThreshold)
	v.SetDefault("p2p.max_clock_drift_secs", d.P2P.MaxClockDriftSecs)
	v.SetDefault("p2p.finality_depth", d.P2P.FinalityDepth)

	v.SetDefault("storage.checkpoint_interval", d.Storage.CheckpointInterval)
	v.SetDefault("storage.keep_receipts_blocks", d.Storage.KeepReceiptsBlocks)
	v.SetDefault("storage.pruning_interval", d.Storage.PruningInterval)

	v.SetDefault("hnsw.m", d.HNSW.M)
	v.SetDefault("hnsw.m0", d.HNSW.M0)
	v.SetDefault("hnsw.ef_construction", d.HNSW.EfConstruction)
	v.SetDefault("hnsw.ef_search", d.HNSW.EfSearch)
	v.SetDefault("hnsw.max_layer", d.HNSW.MaxLayer)
	v.SetDefault("hnsw.max_capacity", d.HNSW.MaxCapacity)

	v.SetDefault("tokenomics.initial_reward_tokens", d.Tokenomics.InitialRewardTokens)
	v.SetDefault("tokenomics.minimum_reward_tokens", d.Tokenomics.MinimumRewardTokens)
	v.SetDefault("tokenomics.halving_interval_blocks", d.Tokenomics.HalvingIntervalBlocks)
	v.SetDefault("tokenomics.max_halvings", d.Tokenomics.MaxHalvings)
	v.SetDefault("tokenomics.min_base_fee_wei", d.Tokenomics.MinBaseFeeWei)
	v.SetDefault("tokenomics.max_base_fee_wei", d.Tokenomics.MaxBaseFeeWei)
	v.SetDefault("tokenomics.target_gas_used", d.Tokenomics.TargetGasUsed)
	v.SetDefault("tokenomics.tx_fee_burn_rate_bps", d.Tokenomics.TxFeeBurnRateBps)
	v.SetDefault("tokenomics.subnet_burn_rate_bps", d.Tokenomics.SubnetBurnRateBps)
	v.SetDefault("tokenomics.slashing_burn_rate_bps", d.Tokenomics.SlashingBurnRateBps)

	v.SetDefault("governance.min_proposal_stake_wei", d.Governance.MinProposalStakeWei)
	v.SetDefault("governance.voting_period_blocks", d.Governance.VotingPeriodBlocks)
	v.SetDefault("governance.timelock_blocks", d.Governance.TimelockBlocks)
	v.SetDefault("governance.emergency_timelock_blocks", d.Governance.EmergencyTimelockBlocks)
	v.SetDefault("governance.quorum_bps", d.Governance.QuorumBps)
	v.SetDefault("governance.approval_threshold_bps", d.Governance.ApprovalThresholdBps)
	v.SetDefault("governance.max_proposal_age_blocks", d.Governance.MaxProposalAgeBlocks)

	v.SetDefault("weight_consensus.min_validators", d.WeightConsensus.MinValidators)
	v.SetDefault("weight_consensus.approval_threshold_percent", d.WeightConsensus.ApprovalThresholdPercent)
	v.SetDefault("weight_consensus.proposal_timeout_blocks", d.WeightConsensus.ProposalTimeoutBlocks)
	v.SetDefault("weight_consensus.proposal_cooldown_blocks", d.WeightConsensus.ProposalCooldownBlocks)
	v.SetDefault("weight_consensus.committee_size", d.WeightConsensus.CommitteeSize)
	v.SetDefault("weight_consensus.max_records_per_voter", d.WeightConsensus.MaxRecordsPerVoter)
	v.SetDefault("weight_consensus.collusion_agreement_rate", d.WeightConsensus.CollusionAgreementRate)
	v.SetDefault("weight_consensus.collusion_inflation_factor", d.WeightConsensus.CollusionInflationFactor)

	v.SetDefault("slashing.penalty_bps", d.Slashing.PenaltyBps)
	v.SetDefault("long_range.weak_subjectivity_window", d.LongRange.WeakSubjectivityWindow)
}

// Validate rejects configs with nonsensical tunables before a node
// ever starts its subsystems on them.
func (c *Config) Validate() error {
	if c.MaxTxsPerBlock <= 0 {
		return fmt.Errorf("max_txs_per_block must be positive, got %d", c.MaxTxsPerBlock)
	}
	if c.BlockGasLimit == 0 {
		return fmt.Errorf("block_gas_limit must be positive")
	}
	if c.P2P.FinalityDepth == 0 {
		return fmt.Errorf("p2p.finality_depth must be positive")
	}
	if c.Governance.QuorumBps == 0 || c.Governance.QuorumBps > uint16(types.MaxBasisPoints) {
		return fmt.Errorf("governance.quorum_bps must be in (0, %d]", types.MaxBasisPoints)
	}
	if c.WeightConsensus.ApprovalThresholdPercent == 0 || c.WeightConsensus.ApprovalThresholdPercent > 100 {
		return fmt.Errorf("weight_consensus.approval_threshold_percent must be in (0, 100]")
	}
	return nil
}

// ToP2PConfig converts the loaded P2P section into p2p.Config.
func (c *Config) ToP2PConfig() p2p.Config {
	return p2p.Config{
		ChainID:            c.ChainID,
		NormalRatePerSec:   c.P2P.NormalRatePerSec,
		NormalBurst:        c.P2P.NormalBurst,
		FarAheadRatePerSec: c.P2P.FarAheadRatePerSec,
		FarAheadBurst:      c.P2P.FarAheadBurst,
	}
}

// ToGovernanceConfig converts the loaded Governance section into
// governance.Config.
func (c *Config) ToGovernanceConfig() (governance.Config, error) {
	stake, ok := new(big.Int).SetString(c.Governance.MinProposalStakeWei, 10)
	if !ok {
		return governance.Config{}, fmt.Errorf("config: invalid governance.min_proposal_stake_wei %q", c.Governance.MinProposalStakeWei)
	}
	return governance.Config{
		MinProposalStake:        stake,
		VotingPeriodBlocks:      types.Height(c.Governance.VotingPeriodBlocks),
		TimelockBlocks:          types.Height(c.Governance.TimelockBlocks),
		EmergencyTimelockBlocks: types.Height(c.Governance.EmergencyTimelockBlocks),
		QuorumBps:               types.BasisPoints(c.Governance.QuorumBps),
		ApprovalThresholdBps:    types.BasisPoints(c.Governance.ApprovalThresholdBps),
		MaxProposalAgeBlocks:    types.Height(c.Governance.MaxProposalAgeBlocks),
	}, nil
}

// ToWeightConsensusConfig converts the loaded WeightConsensus section
// into weightconsensus.Config.
func (c *Config) ToWeightConsensusConfig() weightconsensus.Config {
	return weightconsensus.Config{
		MinValidators:            c.WeightConsensus.MinValidators,
		ApprovalThresholdPercent: c.WeightConsensus.ApprovalThresholdPercent,
		ProposalTimeoutBlocks:    types.Height(c.WeightConsensus.ProposalTimeoutBlocks),
		ProposalCooldownBlocks:   types.Height(c.WeightConsensus.ProposalCooldownBlocks),
		CommitteeSize:            c.WeightConsensus.CommitteeSize,
		MaxRecordsPerVoter:       c.WeightConsensus.MaxRecordsPerVoter,
		CollusionAgreementRate:   c.WeightConsensus.CollusionAgreementRate,
		CollusionInflationFactor: c.WeightConsensus.CollusionInflationFactor,
	}
}

// ToBlockProducerConfig converts the loaded top-level section into
// blockproducer.Config, folding in the genesis hash the caller
// resolves from the chain's genesis block; the DAO address comes from
// the loaded dao_address setting.
func (c *Config) ToBlockProducerConfig(genesisHash types.Hash) blockproducer.Config {
	return blockproducer.Config{
		GenesisHash:    genesisHash,
		EpochLength:    types.Height(c.EpochLength),
		MaxTxsPerBlock: c.MaxTxsPerBlock,
		BlockGasLimit:  c.BlockGasLimit,
		DAOAddress:     common.HexToAddress(c.DAOAddress),
	}
}

// ApplyOverrides coerces a set of loosely-typed values, as a CLI flag
// set or an RPC admin call would hand over, into cfg's fields. Unknown
// keys are ignored. Coercion uses cast rather than a type assertion so
// a flag library that hands back "2000" (string) or 2000 (int) for
// the same field both work.
func ApplyOverrides(cfg *Config, overrides map[string]interface{}) {
	if v, ok := overrides["chain_id"]; ok {
		cfg.ChainID = cast.ToUint64(v)
	}
	if v, ok := overrides["data_dir"]; ok {
		cfg.DataDir = cast.ToString(v)
	}
	if v, ok := overrides["listen_addr"]; ok {
		cfg.ListenAddr = cast.ToString(v)
	}
	if v, ok := overrides["max_txs_per_block"]; ok {
		cfg.MaxTxsPerBlock = cast.ToInt(v)
	}
	if v, ok := overrides["block_gas_limit"]; ok {
		cfg.BlockGasLimit = cast.ToUint64(v)
	}
	if v, ok := overrides["epoch_length"]; ok {
		cfg.EpochLength = cast.ToUint64(v)
	}
}

// ToHalvingSchedule converts the loaded Tokenomics section into a
// *tokenomics.HalvingSchedule. It starts from DefaultHalvingSchedule
// so the schedule's unexported cumulative-emission counter is
// properly initialized, then overrides the four exported fields.
func (c *Config) ToHalvingSchedule() *tokenomics.HalvingSchedule {
	initial := new(big.Float).Mul(big.NewFloat(c.Tokenomics.InitialRewardTokens), new(big.Float).SetInt(tokenomics.OneToken))
	minimum := new(big.Float).Mul(big.NewFloat(c.Tokenomics.MinimumRewardTokens), new(big.Float).SetInt(tokenomics.OneToken))
	initialInt, _ := initial.Int(nil)
	minimumInt, _ := minimum.Int(nil)

	h := tokenomics.DefaultHalvingSchedule()
	h.InitialReward = initialInt
	h.MinimumReward = minimumInt
	h.HalvingInterval = types.Height(c.Tokenomics.HalvingIntervalBlocks)
	h.MaxHalvings = c.Tokenomics.MaxHalvings
	return h
}

// ToFeeMarket converts the loaded Tokenomics fee-market fields and
// the top-level block gas limit into a *tokenomics.FeeMarket,
// validating the two wei strings.
func (c *Config) ToFeeMarket() (*tokenomics.FeeMarket, error) {
	minFee, ok := new(big.Int).SetString(c.Tokenomics.MinBaseFeeWei, 10)
	if !ok {
		return nil, fmt.Errorf("config: invalid tokenomics.min_base_fee_wei %q", c.Tokenomics.MinBaseFeeWei)
	}
	maxFee, ok := new(big.Int).SetString(c.Tokenomics.MaxBaseFeeWei, 10)
	if !ok {
		return nil, fmt.Errorf("config: invalid tokenomics.max_base_fee_wei %q", c.Tokenomics.MaxBaseFeeWei)
	}
	return tokenomics.NewFeeMarket(minFee, maxFee, c.Tokenomics.TargetGasUsed, c.BlockGasLimit)
}

// ToBurnManager converts the loaded Tokenomics burn-rate fields into
// a *tokenomics.BurnManager. It starts from NewBurnManager so the
// manager's unexported cumulative-burn counter is properly
// initialized, then overrides the three exported rate fields.
func (c *Config) ToBurnManager() *tokenomics.BurnManager {
	b := tokenomics.NewBurnManager()
	b.TxFeeBurnRateBps = types.BasisPoints(c.Tokenomics.TxFeeBurnRateBps)
	b.SubnetBurnRateBps = types.BasisPoints(c.Tokenomics.SubnetBurnRateBps)
	b.SlashingBurnRateBps = types.BasisPoints(c.Tokenomics.SlashingBurnRateBps)
	return b
}
