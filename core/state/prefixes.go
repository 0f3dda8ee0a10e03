package state

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

var (
	accountPrefix      = []byte("bank/account/")
	stakerLedgerPrefix = []byte("staker/ledger/")
	beneficiaryPrefix  = []byte("beneficiary/")
	stakerPoolKey      = ethcrypto.Keccak256([]byte("staker/pool"))
	stakerParticipants = ethcrypto.Keccak256([]byte("staker/participants"))
	genesisAppliedKey  = ethcrypto.Keccak256([]byte("genesis/applied"))
)

func addressKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(addr))
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr [20]byte) []byte { return addressKey(accountPrefix, addr) }

func stakerLedgerKey(addr [20]byte) []byte { return addressKey(stakerLedgerPrefix, addr) }

func beneficiaryKey(addr [20]byte) []byte { return addressKey(beneficiaryPrefix, addr) }
