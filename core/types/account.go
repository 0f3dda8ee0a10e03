package types

import "math/big"

// Account is the bank record kept for every address that has ever held value.
// Nonce counts the signed stakes accepted from the account.
type Account struct {
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce" rlp:"optional"`
}

// EnsureAccount normalises nil accounts and balances to zero values.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
