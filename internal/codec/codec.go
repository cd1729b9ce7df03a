// Package codec encodes ledger records in the protobuf wire format.
//
// Fields are written in ascending field-number order and zero values are
// omitted, so a record always encodes to the same bytes. Unknown fields are
// skipped on decode, which lets newer records be read by older binaries.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/predictionamm/internal/domain"
)

// ErrMalformed is returned when a stored record cannot be decoded.
var ErrMalformed = errors.New("codec: malformed record")

// Market field numbers.
const (
	marketID protowire.Number = iota + 1
	marketCreatedAt
	marketSettleBy
	marketBettingCutoff
	marketDescription
	marketTargetValue
	marketFinalValue
	marketYesPool
	marketNoPool
	marketYesExposure
	marketNoExposure
	marketStatus
	marketYesWins
)

// UserBet field numbers.
const (
	betMarketID protowire.Number = iota + 1
	betUser
	betYesStake
	betNoStake
)

// Event field numbers.
const (
	eventSeq protowire.Number = iota + 1
	eventID
	eventKind
	eventMarketID
	eventActor
	eventAt
	eventMessage
	eventDetail
)

// EncodeUint64 encodes a bare counter or balance.
func EncodeUint64(v uint64) []byte {
	return protowire.AppendVarint(nil, v)
}

// DecodeUint64 decodes a value written by EncodeUint64.
func DecodeUint64(b []byte) (uint64, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 || n != len(b) {
		return 0, fmt.Errorf("%w: uint64", ErrMalformed)
	}
	return v, nil
}

// EncodeMarket encodes m.
func EncodeMarket(m domain.Market) []byte {
	var b []byte
	b = appendUint(b, marketID, m.ID)
	b = appendInt(b, marketCreatedAt, m.CreatedAt)
	b = appendInt(b, marketSettleBy, m.SettleBy)
	b = appendInt(b, marketBettingCutoff, m.BettingCutoff)
	b = appendString(b, marketDescription, m.Description)
	b = appendUint(b, marketTargetValue, m.TargetValue)
	b = appendUint(b, marketFinalValue, m.FinalValue)
	b = appendUint(b, marketYesPool, m.YesPool)
	b = appendUint(b, marketNoPool, m.NoPool)
	b = appendUint(b, marketYesExposure, m.YesExposure)
	b = appendUint(b, marketNoExposure, m.NoExposure)
	b = appendUint(b, marketStatus, uint64(m.Status))
	b = appendBool(b, marketYesWins, m.YesWins)
	return b
}

// DecodeMarket decodes a record written by EncodeMarket.
func DecodeMarket(b []byte) (domain.Market, error) {
	var m domain.Market
	err := walk(b, func(num protowire.Number, v uint64, s []byte) {
		switch num {
		case marketID:
			m.ID = v
		case marketCreatedAt:
			m.CreatedAt = protowire.DecodeZigZag(v)
		case marketSettleBy:
			m.SettleBy = protowire.DecodeZigZag(v)
		case marketBettingCutoff:
			m.BettingCutoff = protowire.DecodeZigZag(v)
		case marketDescription:
			m.Description = string(s)
		case marketTargetValue:
			m.TargetValue = v
		case marketFinalValue:
			m.FinalValue = v
		case marketYesPool:
			m.YesPool = v
		case marketNoPool:
			m.NoPool = v
		case marketYesExposure:
			m.YesExposure = v
		case marketNoExposure:
			m.NoExposure = v
		case marketStatus:
			m.Status = domain.MarketStatus(v)
		case marketYesWins:
			m.YesWins = v != 0
		}
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("codec: decode market: %w", err)
	}
	return m, nil
}

// EncodeUserBet encodes the stake aggregate. The claimed flag is stored
// under its own key and is not part of the record.
func EncodeUserBet(ub domain.UserBet) []byte {
	var b []byte
	b = appendUint(b, betMarketID, ub.MarketID)
	b = appendString(b, betUser, ub.User)
	b = appendUint(b, betYesStake, ub.YesStake)
	b = appendUint(b, betNoStake, ub.NoStake)
	return b
}

// DecodeUserBet decodes a record written by EncodeUserBet.
func DecodeUserBet(b []byte) (domain.UserBet, error) {
	var ub domain.UserBet
	err := walk(b, func(num protowire.Number, v uint64, s []byte) {
		switch num {
		case betMarketID:
			ub.MarketID = v
		case betUser:
			ub.User = string(s)
		case betYesStake:
			ub.YesStake = v
		case betNoStake:
			ub.NoStake = v
		}
	})
	if err != nil {
		return domain.UserBet{}, fmt.Errorf("codec: decode user bet: %w", err)
	}
	return ub, nil
}

// EncodeEvent encodes e. The detail map is embedded as a JSON document;
// numbers in it decode as json.Number so amounts keep full precision.
func EncodeEvent(e domain.Event) ([]byte, error) {
	var b []byte
	b = appendUint(b, eventSeq, e.Seq)
	b = appendString(b, eventID, e.ID)
	b = appendString(b, eventKind, string(e.Kind))
	b = appendUint(b, eventMarketID, e.MarketID)
	b = appendString(b, eventActor, e.Actor)
	b = appendInt(b, eventAt, e.At)
	b = appendString(b, eventMessage, e.Message)
	if len(e.Detail) > 0 {
		detail, err := json.Marshal(e.Detail)
		if err != nil {
			return nil, fmt.Errorf("codec: encode event detail: %w", err)
		}
		b = protowire.AppendTag(b, eventDetail, protowire.BytesType)
		b = protowire.AppendBytes(b, detail)
	}
	return b, nil
}

// DecodeEvent decodes a record written by EncodeEvent.
func DecodeEvent(b []byte) (domain.Event, error) {
	var (
		e      domain.Event
		detail []byte
	)
	err := walk(b, func(num protowire.Number, v uint64, s []byte) {
		switch num {
		case eventSeq:
			e.Seq = v
		case eventID:
			e.ID = string(s)
		case eventKind:
			e.Kind = domain.EventKind(s)
		case eventMarketID:
			e.MarketID = v
		case eventActor:
			e.Actor = string(s)
		case eventAt:
			e.At = protowire.DecodeZigZag(v)
		case eventMessage:
			e.Message = string(s)
		case eventDetail:
			detail = s
		}
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("codec: decode event: %w", err)
	}
	if len(detail) > 0 {
		dec := json.NewDecoder(bytes.NewReader(detail))
		dec.UseNumber()
		if err := dec.Decode(&e.Detail); err != nil {
			return domain.Event{}, fmt.Errorf("codec: decode event detail: %w", err)
		}
	}
	return e, nil
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// walk calls fn for every varint and length-delimited field in b. Other
// wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, v uint64, s []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			fn(num, v, nil)
			b = b[m:]
		case protowire.BytesType:
			s, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			fn(num, 0, s)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}
