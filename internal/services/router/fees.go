package router

import (
	"strconv"

	"github.com/shopspring/decimal"
	chainselectors "github.com/smartcontractkit/chain-selectors"

	"atlas/internal/adapters/config"
	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// FeeSchedule prices message delivery per destination chain. Estimation is
// a pure function of payload size and the destination's base fee; it fails
// only on an unknown destination.
type FeeSchedule struct {
	baseFees map[uint64]decimal.Decimal
	perByte  decimal.Decimal
	altRate  decimal.Decimal
}

// NewFeeSchedule builds the schedule from chain configuration
func NewFeeSchedule(cfg config.ChainConfig) (*FeeSchedule, error) {
	perByte, err := decimal.NewFromString(cfg.FeePerByte)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "fee per byte")
	}
	altRate, err := decimal.NewFromString(cfg.AltFeeRate)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "alt fee rate")
	}

	log := logger.Get().With("component", "fee_schedule")
	baseFees := make(map[uint64]decimal.Decimal, len(cfg.BaseFees))
	for id, raw := range cfg.BaseFees {
		chainID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "chain id %q", id)
		}
		fee, err := decimal.NewFromString(raw)
		if err != nil || fee.IsNegative() {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "base fee for chain %s", id)
		}
		baseFees[chainID] = fee

		// every configured destination must exist in the selector registry
		// for this chain family; a typo here would strand paid messages
		details, err := chainselectors.GetChainDetailsByChainIDAndFamily(id, cfg.Family)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrUnknownChain, "chain %s not registered for family %s", id, cfg.Family)
		}
		log.Infow("Destination configured", "chain_id", chainID, "chain", details.ChainName, "base_fee", fee)
	}

	return &FeeSchedule{
		baseFees: baseFees,
		perByte:  perByte,
		altRate:  altRate,
	}, nil
}

// Estimate returns the native and alternative-token delivery fee for a
// payload of the given size
func (f *FeeSchedule) Estimate(payloadSize int, dstChain uint64) (native, alt decimal.Decimal, err error) {
	base, ok := f.baseFees[dstChain]
	if !ok {
		return decimal.Zero, decimal.Zero, errors.Wrapf(errors.ErrUnknownChain, "chain %d", dstChain)
	}
	native = base.Add(f.perByte.Mul(decimal.NewFromInt(int64(payloadSize))))
	alt = native.Mul(f.altRate)
	return native, alt, nil
}

// Knows reports whether a destination chain is configured
func (f *FeeSchedule) Knows(dstChain uint64) bool {
	_, ok := f.baseFees[dstChain]
	return ok
}
