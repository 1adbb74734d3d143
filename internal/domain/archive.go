package domain

// PoolResults are the winners computed by the completer.
type PoolResults struct {
	WinnerAddressesUniqued []string `json:"winnerAddressesUniqued"`
	WinnerPredictionIDs    []uint64 `json:"winnerPredictionIds"`
}

// ArchivedPool is the archive document for one pool on one chain. Stage 1
// writes it, stage 2 overwrites it with Results, stage 3 and the notifier
// only flip their flags.
type ArchivedPool struct {
	Chain       Chain        `json:"chain"`
	Pool        Pool         `json:"pool"`
	Predictions []Prediction `json:"predictions"`
	Results     *PoolResults `json:"results,omitempty"`

	HasBeenProcessedInLeaderboard bool `json:"hasBeenProcessedInLeaderboard"`
	HasNotifiedCreatorOnTelegram  bool `json:"hasNotifiedCreatorOnTelegram"`
}

// PoolRef addresses a pool on a chain. It is the payload of every pipeline job.
type PoolRef struct {
	Chain  Chain  `json:"chain"`
	PoolID uint64 `json:"poolId"`
}
