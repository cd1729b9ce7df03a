package engine

import "strconv"

// Storage keys. Every record lives under a namespaced key so lookups by
// composite id are a single read. Callers are free-form strings, so each
// record kind has its own prefix and no key extends another record's key.
const (
	keyOwner         = "OWNER"
	keyMarketCounter = "MARKET_COUNTER"
	keyHouseBalance  = "HOUSE_BALANCE"
	keyCustody       = "CUSTODY_BALANCE"
	keyEventCounter  = "EVENT_COUNTER"

	prefixMarket  = "MARKET_"
	prefixBet     = "USER_BET_"
	prefixClaimed = "CLAIMED_"
	prefixAdmin   = "ADMIN_"
	prefixEvent   = "EVENT_"
)

func marketKey(id uint64) string {
	return prefixMarket + strconv.FormatUint(id, 10)
}

func betKey(marketID uint64, user string) string {
	return prefixBet + strconv.FormatUint(marketID, 10) + "_" + user
}

func claimedKey(marketID uint64, user string) string {
	return prefixClaimed + strconv.FormatUint(marketID, 10) + "_" + user
}

func adminKey(addr string) string {
	return prefixAdmin + addr
}

func eventKey(seq uint64) string {
	return prefixEvent + strconv.FormatUint(seq, 10)
}
