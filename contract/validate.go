package contract

import (
	"github.com/btcdlc/dlcd/dlcerr"
)

// Validate checks the structural invariants of spec §4.C against an
// OfferedContract: collateral conservation and a well-formed contract-info
// list.
func (o *OfferedContract) Validate() error {
	if o.OfferParams.CollateralAmount > o.TotalCollateral {
		return dlcerr.New(dlcerr.InvalidParameters,
			"offer collateral %d exceeds total collateral %d", o.OfferParams.CollateralAmount, o.TotalCollateral)
	}
	if len(o.ContractInfo) == 0 {
		return dlcerr.New(dlcerr.InvalidParameters, "offered contract has no contract info")
	}
	for i := range o.ContractInfo {
		ci := &o.ContractInfo[i]
		if ci.TotalCollateral != o.TotalCollateral {
			return dlcerr.New(dlcerr.InvalidParameters,
				"contract info %d total collateral %d does not match offered contract total %d",
				i, ci.TotalCollateral, o.TotalCollateral)
		}
		if err := ci.Validate(); err != nil {
			return dlcerr.Wrap(dlcerr.InvalidParameters, err, "contract info %d is invalid", i)
		}
	}
	if err := o.OfferParams.Validate(); err != nil {
		return dlcerr.Wrap(dlcerr.InvalidParameters, err, "offer party params are invalid")
	}
	return nil
}

// Validate checks the structural invariants against an AcceptedContract:
// the offered contract's own invariants, the accept party's params, and
// `offer_collateral + accept_collateral == total_collateral`.
func (a *AcceptedContract) Validate() error {
	if err := a.OfferedContract.Validate(); err != nil {
		return err
	}
	if err := a.AcceptParams.Validate(); err != nil {
		return dlcerr.Wrap(dlcerr.InvalidParameters, err, "accept party params are invalid")
	}
	sum := a.OfferedContract.OfferParams.CollateralAmount + a.AcceptParams.CollateralAmount
	if sum != a.OfferedContract.TotalCollateral {
		return dlcerr.New(dlcerr.InvalidParameters,
			"offer + accept collateral %d does not equal total collateral %d",
			sum, a.OfferedContract.TotalCollateral)
	}
	return nil
}
