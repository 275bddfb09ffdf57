// Package audit implements the spend DAG audit engine: crawling the
// network of signed spends forward to the UTXO frontier and backward to
// the genesis issuance, assembling the results into an explicit DAG and
// classifying ledger-integrity faults on it.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// ErrSpendNotFound means no spend record exists at an address: the
// corresponding output is unspent.
var ErrSpendNotFound = errors.New("no spend recorded at address")

// DoubleSpendError is returned when the network holds two or more
// conflicting signed spends for one address.
type DoubleSpendError struct {
	Addr   types.SpendAddress
	Spends []*ledger.SignedSpend
}

func (e *DoubleSpendError) Error() string {
	return fmt.Sprintf("%d conflicting spends recorded at %s", len(e.Spends), e.Addr.Short())
}

// SpendNetwork fetches spend records from the peer-to-peer network.
// GetSpend resolves to exactly one of: the single spend at the address;
// ErrSpendNotFound (the address is a UTXO); *DoubleSpendError (the
// network returned conflicting spends); or any other error for
// transient/network failures. The auditor only ever reads.
type SpendNetwork interface {
	GetSpend(ctx context.Context, addr types.SpendAddress) (*ledger.SignedSpend, error)
}

// fetchStatus classifies the outcome of one spend fetch.
type fetchStatus uint8

const (
	fetchOK fetchStatus = iota + 1
	fetchDouble
	fetchNotFound
	fetchFailed
)

// fetchResult is the classified outcome of fetching one address.
type fetchResult struct {
	addr   types.SpendAddress
	status fetchStatus
	spends []*ledger.SignedSpend
	err    error
}

// classifyFetch maps a GetSpend outcome onto a fetchResult.
func classifyFetch(addr types.SpendAddress, spend *ledger.SignedSpend, err error) fetchResult {
	switch {
	case err == nil:
		return fetchResult{addr: addr, status: fetchOK, spends: []*ledger.SignedSpend{spend}}
	case errors.Is(err, ErrSpendNotFound):
		return fetchResult{addr: addr, status: fetchNotFound}
	default:
		var dbl *DoubleSpendError
		if errors.As(err, &dbl) {
			return fetchResult{addr: addr, status: fetchDouble, spends: dbl.Spends}
		}
		return fetchResult{addr: addr, status: fetchFailed, err: err}
	}
}
