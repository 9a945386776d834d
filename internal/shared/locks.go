package shared

import "fmt"

// SellerLockKey names the critical section guarding a seller's payables.
func SellerLockKey(sellerID int64) string {
	return fmt.Sprintf("ledger:seller:%d:payables", sellerID)
}
