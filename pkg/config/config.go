package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for rewards server configuration
const (
	EnvRewardsConfigFile         = "REWARDS_CONFIG_FILE"
	EnvRewardsPort               = "REWARDS_PORT"
	EnvRewardsOwnerAddress       = "REWARDS_OWNER_ADDRESS"
	EnvRewardsTreasuryAddress    = "REWARDS_TREASURY_ADDRESS"
	EnvRewardsActivationDelay    = "REWARDS_ACTIVATION_DELAY"
	EnvRewardsPersistenceType    = "REWARDS_PERSISTENCE_TYPE"
	EnvRewardsDataPath           = "REWARDS_DATA_PATH"
	EnvRewardsRedisAddress       = "REWARDS_REDIS_ADDRESS"
	EnvRewardsRedisPassword      = "REWARDS_REDIS_PASSWORD"
	EnvRewardsRedisDB            = "REWARDS_REDIS_DB"
	EnvRewardsRedisKeyPrefix     = "REWARDS_REDIS_KEY_PREFIX"
	EnvRewardsTokenType          = "REWARDS_TOKEN_TYPE"
	EnvRewardsTokenSymbol        = "REWARDS_TOKEN_SYMBOL"
	EnvRewardsTokenDecimals      = "REWARDS_TOKEN_DECIMALS"
	EnvRewardsTokenAddress       = "REWARDS_TOKEN_ADDRESS"
	EnvRewardsInitialSupply      = "REWARDS_INITIAL_SUPPLY"
	EnvRewardsCustodyAddress     = "REWARDS_CUSTODY_ADDRESS"
	EnvRewardsChainID            = "REWARDS_CHAIN_ID"
	EnvRewardsRPCURL             = "REWARDS_RPC_URL"
	EnvRewardsPrivateKey         = "REWARDS_PRIVATE_KEY"
	EnvRewardsClaimRateLimit     = "REWARDS_CLAIM_RATE_LIMIT"
	EnvRewardsClaimBurst         = "REWARDS_CLAIM_BURST"
	EnvRewardsMerkleArtifactPath = "REWARDS_MERKLE_ARTIFACT_PATH"
	EnvRewardsDebug              = "REWARDS_DEBUG"
	EnvRewardsServerURL          = "REWARDS_SERVER_URL"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumHolesky ChainId = 17000
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumHolesky ChainName = "holesky"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumHolesky: ChainName_EthereumHolesky,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumHolesky: ChainId_EthereumHolesky,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// IsEthereum reports whether chainId is an Ethereum L1 network (public or test)
func IsEthereum(chainId ChainId) bool {
	switch chainId {
	case ChainId_EthereumMainnet, ChainId_EthereumHolesky, ChainId_EthereumSepolia:
		return true
	default:
		return false
	}
}

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumHolesky,
		ChainId_EthereumSepolia,
		ChainId_EthereumAnvil,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (holesky), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumHolesky, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

// Token backends
const (
	TokenTypeMemory = "memory"
	TokenTypeERC20  = "erc20"
)

// Persistence backends
const (
	PersistenceTypeMemory = "memory"
	PersistenceTypeBadger = "badger"
	PersistenceTypeRedis  = "redis"
)

const (
	DefaultPort            = 8080
	DefaultActivationDelay = 3600
	DefaultTokenSymbol     = "RWD"
	DefaultTokenDecimals   = 18
	DefaultClaimRateLimit  = 50.0
	DefaultClaimBurst      = 100
)

type PersistenceConfig struct {
	Type           string `json:"type" yaml:"type"`
	DataPath       string `json:"dataPath" yaml:"dataPath"`
	RedisAddress   string `json:"redisAddress" yaml:"redisAddress"`
	RedisPassword  string `json:"redisPassword" yaml:"redisPassword"`
	RedisDB        int    `json:"redisDB" yaml:"redisDB"`
	RedisKeyPrefix string `json:"redisKeyPrefix" yaml:"redisKeyPrefix"`
}

type TokenConfig struct {
	Type     string `json:"type" yaml:"type"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`

	// InitialSupply is minted to the custody address by the memory token, in whole tokens ("1000.5")
	InitialSupply string `json:"initialSupply" yaml:"initialSupply"`
	// CustodyAddress holds the distributable funds of the memory token
	CustodyAddress string `json:"custodyAddress" yaml:"custodyAddress"`

	// ERC20 backend
	Address    string  `json:"address" yaml:"address"`
	ChainID    ChainId `json:"chainId" yaml:"chainId"`
	RpcUrl     string  `json:"rpcUrl" yaml:"rpcUrl"`
	PrivateKey string  `json:"privateKey" yaml:"privateKey"`
}

// RewardsServerConfig represents the complete configuration for a rewards server
type RewardsServerConfig struct {
	Port int `json:"port" yaml:"port"`

	// OwnerAddress becomes the protocol owner on first start
	OwnerAddress    string `json:"ownerAddress" yaml:"ownerAddress"`
	TreasuryAddress string `json:"treasuryAddress" yaml:"treasuryAddress"`

	// ActivationDelay seeds RewardsActivationDelay (seconds) when the store has none
	ActivationDelay int64 `json:"activationDelay" yaml:"activationDelay"`

	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
	Token       TokenConfig       `json:"token" yaml:"token"`

	// ClaimRateLimit is the sustained number of claim requests per second, ClaimBurst the bucket size
	ClaimRateLimit float64 `json:"claimRateLimit" yaml:"claimRateLimit"`
	ClaimBurst     int     `json:"claimBurst" yaml:"claimBurst"`

	// MerkleArtifactPath optionally loads a one-shot distribution served under /distribution
	MerkleArtifactPath string `json:"merkleArtifactPath" yaml:"merkleArtifactPath"`

	Debug bool `json:"debug" yaml:"debug"`
}

// NewDefaultRewardsServerConfig returns a config with every optional value defaulted
func NewDefaultRewardsServerConfig() *RewardsServerConfig {
	return &RewardsServerConfig{
		Port:            DefaultPort,
		ActivationDelay: DefaultActivationDelay,
		Persistence: PersistenceConfig{
			Type:     PersistenceTypeMemory,
			DataPath: "./data",
		},
		Token: TokenConfig{
			Type:     TokenTypeMemory,
			Symbol:   DefaultTokenSymbol,
			Decimals: DefaultTokenDecimals,
			ChainID:  ChainId_EthereumAnvil,
		},
		ClaimRateLimit: DefaultClaimRateLimit,
		ClaimBurst:     DefaultClaimBurst,
	}
}

// LoadRewardsServerConfigFile reads a YAML config file over the defaults
func LoadRewardsServerConfigFile(path string) (*RewardsServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseRewardsServerConfig(data)
}

// ParseRewardsServerConfig parses YAML over the defaults
func ParseRewardsServerConfig(data []byte) (*RewardsServerConfig, error) {
	cfg := NewDefaultRewardsServerConfig()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func validateAddress(allErrors field.ErrorList, path *field.Path, value string, required bool) field.ErrorList {
	if value == "" {
		if required {
			allErrors = append(allErrors, field.Required(path, "address is required"))
		}
		return allErrors
	}
	if !common.IsHexAddress(value) {
		allErrors = append(allErrors, field.Invalid(path, value, "invalid address format"))
	} else if common.HexToAddress(value) == (common.Address{}) {
		allErrors = append(allErrors, field.Invalid(path, value, "address cannot be the zero address"))
	}
	return allErrors
}

// Validate validates the rewards server configuration
func (c *RewardsServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}
	allErrors = validateAddress(allErrors, field.NewPath("ownerAddress"), c.OwnerAddress, true)
	allErrors = validateAddress(allErrors, field.NewPath("treasuryAddress"), c.TreasuryAddress, false)

	if c.ActivationDelay < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("activationDelay"), c.ActivationDelay, "activation delay cannot be negative"))
	}
	if c.ClaimRateLimit <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("claimRateLimit"), c.ClaimRateLimit, "must be positive"))
	}
	if c.ClaimBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("claimBurst"), c.ClaimBurst, "must be at least 1"))
	}

	allErrors = append(allErrors, c.Persistence.Validate(field.NewPath("persistence"))...)
	allErrors = append(allErrors, c.Token.Validate(field.NewPath("token"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (p *PersistenceConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch p.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if p.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger"))
		}
	case PersistenceTypeRedis:
		if p.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redisAddress is required for redis"))
		}
		if p.RedisDB < 0 || p.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDB"), p.RedisDB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), p.Type,
			[]string{PersistenceTypeMemory, PersistenceTypeBadger, PersistenceTypeRedis}))
	}
	return allErrors
}

func (t *TokenConfig) Validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	if t.Decimals > 77 {
		allErrors = append(allErrors, field.Invalid(path.Child("decimals"), t.Decimals, "decimals cannot exceed 77"))
	}

	switch t.Type {
	case TokenTypeMemory:
		allErrors = validateAddress(allErrors, path.Child("custodyAddress"), t.CustodyAddress, true)
		if t.InitialSupply != "" {
			if _, ok := new(big.Rat).SetString(t.InitialSupply); !ok || strings.HasPrefix(t.InitialSupply, "-") {
				allErrors = append(allErrors, field.Invalid(path.Child("initialSupply"), t.InitialSupply, "must be a non-negative decimal"))
			}
		}
	case TokenTypeERC20:
		allErrors = validateAddress(allErrors, path.Child("address"), t.Address, true)
		if t.RpcUrl == "" {
			allErrors = append(allErrors, field.Required(path.Child("rpcUrl"), "rpcUrl is required for erc20"))
		}
		if t.PrivateKey == "" {
			allErrors = append(allErrors, field.Required(path.Child("privateKey"), "privateKey is required for erc20"))
		}
		if _, ok := ChainIdToName[t.ChainID]; !ok {
			allErrors = append(allErrors, field.Invalid(path.Child("chainId"), t.ChainID,
				fmt.Sprintf("unsupported chain ID. Supported: %s", GetSupportedChainIDsString())))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), t.Type,
			[]string{TokenTypeMemory, TokenTypeERC20}))
	}
	return allErrors
}

// ClientConfig configures rewardsCli commands that talk to a server
type ClientConfig struct {
	ServerURL  string `json:"serverUrl" yaml:"serverUrl"`
	PrivateKey string `json:"privateKey" yaml:"privateKey"`
}

func (cc *ClientConfig) Validate(requireKey bool) error {
	var allErrors field.ErrorList
	if cc.ServerURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("serverUrl"), "serverUrl is required"))
	}
	if requireKey && cc.PrivateKey == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("privateKey"), "privateKey is required"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
