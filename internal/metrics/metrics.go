package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/chainsafe/eip20-kit/pkg/token"
)

var (
	// BalanceSyncs counts balance refreshes by contract and outcome
	BalanceSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eip20_balance_syncs_total",
			Help: "Total number of balance refreshes",
		},
		[]string{"contract", "status"},
	)

	// BalanceSyncDuration tracks balanceOf round trips
	BalanceSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eip20_balance_sync_duration_seconds",
			Help:    "Balance refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"contract"},
	)

	// Balance tracks the last known balance in whole tokens
	Balance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eip20_balance",
			Help: "Last known token balance, scaled by decimals",
		},
		[]string{"contract", "symbol"},
	)

	// SyncState tracks the sync state kind (0 syncing, 1 synced, 2 not synced)
	SyncState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eip20_sync_state",
			Help: "Current sync state: 0 syncing, 1 synced, 2 not synced",
		},
		[]string{"contract"},
	)

	// TransfersImported counts transfer records persisted by the syncer
	TransfersImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eip20_transfers_imported_total",
			Help: "Total number of imported transfer records",
		},
		[]string{"contract"},
	)

	// LastImportedBlock tracks the import cursor
	LastImportedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eip20_last_imported_block",
			Help: "Highest block number among imported transfers",
		},
		[]string{"contract"},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eip20_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// ObserveSyncState records st for contract.
func ObserveSyncState(contract string, st token.SyncState) {
	SyncState.WithLabelValues(contract).Set(float64(st.Kind))
}

// ObserveBalance records balance scaled by decimals.
func ObserveBalance(contract, symbol string, balance *big.Int, decimals int) {
	if balance == nil {
		return
	}
	Balance.WithLabelValues(contract, symbol).Set(decimal.NewFromBigInt(balance, -int32(decimals)).InexactFloat64())
}
