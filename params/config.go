package params

import (
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// DefaultPersonalSignPrefix is prepended (with the digest length) to order
// digests signed through eth_sign style wallets.
const DefaultPersonalSignPrefix = "\x19Ethereum Signed Message:\n"

// Network describes the chain identity orders are bound to
type Network struct {
	ChainID            int64
	PersonalSignPrefix string
}

// Networks maps a network name to its chain id and personal-sign prefix.
// Unknown names fall back to "development".
var Networks = map[string]Network{
	"development":  {ChainID: 50, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"coverage":     {ChainID: 50, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"rinkeby":      {ChainID: 4, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"rinkeby-fork": {ChainID: 4, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"mainnet":      {ChainID: 1, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"mainnet-fork": {ChainID: 1, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"mumbai":       {ChainID: 80001, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"matic":        {ChainID: 137, PersonalSignPrefix: DefaultPersonalSignPrefix},
	"klaytn":       {ChainID: 8217, PersonalSignPrefix: "\x19Klaytn Signed Message:\n"},
	"baobab":       {ChainID: 1001, PersonalSignPrefix: "\x19Klaytn Signed Message:\n"},
}

type Exchange struct {
	Network            string
	Name               string // EIP-712 domain name
	Version            string // EIP-712 domain version
	ChainID            *big.Int
	PersonalSignPrefix string
}

type Registry struct {
	// Owner may grant the initial authentication and run the timelocked
	// add/remove protocol.
	Owner common.Address
	// AuthDelay is how long a started grant must wait before it can be ended.
	AuthDelay time.Duration
}

type VM struct {
	MaxCallDepth int
}

type Node struct {
	DataDir        string
	WALPath        string
	LogFile        string
	APIAddr        string
	AllowedOrigins []string
}

type Config struct {
	Exchange Exchange
	Registry Registry
	VM       VM
	Node     Node
}

func Default() Config {
	dev := Networks["development"]
	return Config{
		Exchange: Exchange{
			Network:            "development",
			Name:               "HyperSwap Exchange",
			Version:            "1",
			ChainID:            big.NewInt(dev.ChainID),
			PersonalSignPrefix: dev.PersonalSignPrefix,
		},
		Registry: Registry{
			Owner:     common.HexToAddress("0x00000000000000000000000000000000000000a0"),
			AuthDelay: 14 * 24 * time.Hour,
		},
		VM: VM{
			MaxCallDepth: 64,
		},
		Node: Node{
			DataDir:        "data/state",
			WALPath:        "data/state.wal",
			LogFile:        "data/node.log",
			APIAddr:        ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	// NETWORK selects chain id and sign prefix; explicit values below win
	if name := os.Getenv("NETWORK"); name != "" {
		net, ok := Networks[name]
		if !ok {
			name, net = "development", Networks["development"]
		}
		cfg.Exchange.Network = name
		cfg.Exchange.ChainID = big.NewInt(net.ChainID)
		cfg.Exchange.PersonalSignPrefix = net.PersonalSignPrefix
	}

	if id := os.Getenv("CHAIN_ID"); id != "" {
		if v, ok := new(big.Int).SetString(id, 10); ok {
			cfg.Exchange.ChainID = v
		}
	}
	cfg.Exchange.Name = getEnv("EXCHANGE_NAME", cfg.Exchange.Name)
	cfg.Exchange.Version = getEnv("EXCHANGE_VERSION", cfg.Exchange.Version)
	cfg.Exchange.PersonalSignPrefix = getEnv("PERSONAL_SIGN_PREFIX", cfg.Exchange.PersonalSignPrefix)

	if owner := os.Getenv("REGISTRY_OWNER"); owner != "" && common.IsHexAddress(owner) {
		cfg.Registry.Owner = common.HexToAddress(owner)
	}
	if delay := os.Getenv("REGISTRY_AUTH_DELAY_SEC"); delay != "" {
		if sec, err := strconv.Atoi(delay); err == nil && sec >= 0 {
			cfg.Registry.AuthDelay = time.Duration(sec) * time.Second
		}
	}

	if depth := os.Getenv("VM_MAX_CALL_DEPTH"); depth != "" {
		if n, err := strconv.Atoi(depth); err == nil && n > 0 {
			cfg.VM.MaxCallDepth = n
		}
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.WALPath = getEnv("WAL_PATH", cfg.Node.WALPath)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
