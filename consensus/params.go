package consensus

// Consensus-affecting constants. These MUST match bit-exact across every
// node in the network; changing any of them forks the chain.
const (
	BlockSubsidy    uint64 = 50
	HalvingInterval uint64 = 210_000

	MinFee      float64 = 0.001
	BaseTxSize  int     = 250
	BlockSizeLimit int  = 1_000_000

	// TargetBlockTime and MinRate are expressed in nanoseconds, matching the
	// granularity of the timestamp field itself (time.Now().UnixNano()).
	TargetBlockTime uint64 = 60 * 1_000_000_000
	MinRate         uint64 = 1 * 1_000_000_000

	StartingDifficulty int = 3

	// RetargetWindow is the long-horizon difficulty adjustment period: every
	// this-many blocks, difficulty is recomputed from the window's actual vs
	// expected elapsed time rather than the per-block heuristic alone.
	RetargetWindow uint64 = 2016

	// SubsidyEpsilon bounds the floating-point slop tolerated when comparing
	// a chain's cumulative coinbase output against its expected total subsidy.
	// Named and tested rather than an inline magic number (see DESIGN.md).
	SubsidyEpsilon float64 = 1e-6
)
