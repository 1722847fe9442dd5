package appconsts

import "time"

const (
	// Version is the app version reported before any upgrade has been applied.
	Version uint64 = 1

	// MaxTxSize is the largest encoded transaction accepted by CheckTx.
	MaxTxSize int = 256_000

	// MaxSequencedDataBytesPerBlock bounds the sum of all rollup data
	// submission payloads a single block can carry.
	MaxSequencedDataBytesPerBlock int = 256_000

	// AppHashDomain is prepended to the store root when computing the app hash.
	AppHashDomain = "AstriaAppHash"

	// EnvPrefix is the prefix of every environment variable read by the node.
	EnvPrefix = "ASTRIA_SEQUENCER"

	// DefaultNodeName is used for data directories and log scoping.
	DefaultNodeName = "astria-sequencer"
)

// Mempool limits. These are not consensus breaking.
const (
	// TxTTL is how long a transaction may sit in the mempool before it is
	// evicted as expired.
	TxTTL = 240 * time.Second

	// MaxParkedTxsPerAccount bounds the parked container of a single account.
	MaxParkedTxsPerAccount = 15

	// DefaultMaxParkedTxs bounds the parked containers of all accounts.
	DefaultMaxParkedTxs = 15_000

	// RemovalCacheSize is the number of removed transaction hashes remembered
	// so CheckTx can report why a transaction left the mempool.
	RemovalCacheSize = 50_000
)

const (
	// DepositBaseFee is the fixed variable-fee component charged for every
	// deposit emitted to a rollup.
	DepositBaseFee uint64 = 16

	// VoteExtensionsDisabledHeight is the consensus params value that
	// disables vote extensions.
	VoteExtensionsDisabledHeight int64 = 0
)
