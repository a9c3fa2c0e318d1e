// Package select implements input selection for transfers and for the
// two-step staking flow: picking which spendable outputs fund a new
// transaction.
package selectpkg

import (
	"sort"

	"github.com/klingon-tech/klingnet-lightcore/pkg/coreerr"
	"github.com/klingon-tech/klingnet-lightcore/pkg/txmodel"
)

// SpendableOutput is the minimal view of a wallet-owned output the selector
// needs: enough to build a KeyInput and to group outputs by origin tx for
// the staking pick.
type SpendableOutput struct {
	TxHash   txmodel.Hash
	OutIndex uint32
	Amount   uint64
}

// Selection is the result of a normal-transfer coin selection.
type Selection struct {
	Inputs []SpendableOutput
	Total  uint64
	Change uint64
}

// SelectCoins implements the normal-transfer selection strategy: sort
// spendable outputs by amount descending, then walk in order accumulating
// until sum >= targetAmount+fee. The sort is stable, so outputs with equal
// amounts keep their input order, making the tie-break deterministic given
// that order.
func SelectCoins(outputs []SpendableOutput, targetAmount, fee uint64) (Selection, error) {
	candidates := make([]SpendableOutput, len(outputs))
	copy(candidates, outputs)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Amount > candidates[j].Amount
	})

	need := targetAmount + fee

	var selected []SpendableOutput
	var total uint64
	for _, o := range candidates {
		selected = append(selected, o)
		total += o.Amount
		if total >= need {
			return Selection{
				Inputs: selected,
				Total:  total,
				Change: total - need,
			}, nil
		}
	}

	return Selection{}, coreerr.InsufficientFunds(need, total)
}

// HasPreciseStakingOutputs reports whether outputs contains, from some
// single origin transaction, one output of exactly stakeAmount and a
// distinct output of exactly fee.
func HasPreciseStakingOutputs(outputs []SpendableOutput, stakeAmount, fee uint64) bool {
	byTx := groupByTxHash(outputs)
	for _, group := range byTx {
		if findPair(group, stakeAmount, fee) != nil {
			return true
		}
	}
	return false
}

// PickStakingInputs returns the exact [amount_input, fee_input] pair from
// the given preparation transaction. It fails if either leg is missing.
func PickStakingInputs(outputs []SpendableOutput, stakeAmount, fee uint64, prepTxHash txmodel.Hash) ([2]SpendableOutput, error) {
	var group []SpendableOutput
	for _, o := range outputs {
		if o.TxHash == prepTxHash {
			group = append(group, o)
		}
	}

	pair := findPair(group, stakeAmount, fee)
	if pair == nil {
		return [2]SpendableOutput{}, coreerr.New(coreerr.KindNoPreciseStakingOutputs,
			"preparation tx does not contain a distinct (stake_amount, fee) output pair")
	}
	return *pair, nil
}

// findPair locates one output of exactly amountA and a distinct one of
// exactly amountB within group, returning them in [amountA, amountB] order.
func findPair(group []SpendableOutput, amountA, amountB uint64) *[2]SpendableOutput {
	for i, a := range group {
		if a.Amount != amountA {
			continue
		}
		for j, b := range group {
			if i == j {
				continue
			}
			if b.Amount == amountB {
				return &[2]SpendableOutput{a, b}
			}
		}
	}
	return nil
}

func groupByTxHash(outputs []SpendableOutput) map[txmodel.Hash][]SpendableOutput {
	groups := make(map[txmodel.Hash][]SpendableOutput)
	for _, o := range outputs {
		groups[o.TxHash] = append(groups[o.TxHash], o)
	}
	return groups
}
