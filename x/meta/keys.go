package meta

import "strconv"

// ModuleName is the codespace of this module's errors.
const ModuleName = "meta"

const (
	chainIDKey         = "app/chain_id"
	revisionNumberKey  = "app/revision_number"
	blockHeightKey     = "app/block_height"
	blockTimestampKey  = "app/block_timestamp"
	consensusParamsKey = "app/consensus_params"

	// ephemeral
	txContextKey = "app/tx_context"
	eventsKey    = "app/events"
)

func storageVersionKey(height uint64) string {
	return "app/storage_version/" + strconv.FormatUint(height, 10)
}
