// Package protocol defines the wire messages of the ledger service and
// their TLV encoding, plus the length-prefixed framing that carries them
// over a stream transport.
//
// A client sends request packets (one ledger operation each) and a Quit
// control packet to end the session; the server answers every request with
// a response packet and answers Quit with Bye.
package protocol

import (
	"errors"
	"fmt"

	"github.com/ledgerd/ledgerd/core/types"
	"github.com/ledgerd/ledgerd/tlv"
)

// Type ids of the TLV encoding. Values 1-5 tag the operation variants
// inside a request; 15/16 tag the request/response envelopes; 17/18 are the
// session control messages; the rest tag value types.
const (
	TypeIDOpCreate     = 1
	TypeIDOpDeposit    = 2
	TypeIDOpWithdraw   = 3
	TypeIDOpMove       = 4
	TypeIDOpGetBalance = 5

	TypeIDRequest  = 15
	TypeIDResponse = 16
	TypeIDQuit     = 17
	TypeIDBye      = 18

	TypeIDAccountID = 42
	TypeIDMoney     = 52
	TypeIDAmount    = 62
	TypeIDResultOk  = 72
	TypeIDResultErr = 82
	TypeIDAccount   = 92
	TypeIDVec       = 102
)

// ErrInvalidMessage tags every decode failure: unknown type ids, length
// mismatches, invalid UTF-8, zero amounts, oversized ids. A session that
// reads one terminates.
var ErrInvalidMessage = errors.New("protocol: invalid message")

// Packet is one wire message. Kind returns the TLV tag identifying the
// variant (the operation tag for requests, the envelope tag otherwise).
type Packet interface {
	Name() string
	Kind() byte
}

// CreatePacket requests registration of a new account.
type CreatePacket struct {
	Account types.AccountID
}

// DepositPacket requests a balance increase.
type DepositPacket struct {
	Account types.AccountID
	Amount  types.Amount
}

// WithdrawPacket requests a balance decrease.
type WithdrawPacket struct {
	Account types.AccountID
	Amount  types.Amount
}

// MovePacket requests an atomic transfer between two accounts.
type MovePacket struct {
	From   types.AccountID
	To     types.AccountID
	Amount types.Amount
}

// GetBalancePacket requests the current state of an account.
type GetBalancePacket struct {
	Account types.AccountID
}

// QuitPacket ends the session. The server acknowledges with Bye and both
// sides shut the stream down.
type QuitPacket struct{}

// ByePacket is the server's terminal answer to Quit.
type ByePacket struct{}

// ResponsePacket is the server's answer to a request: either the affected
// accounts (one for single-account operations, from/to for a transfer) or
// an error message.
type ResponsePacket struct {
	Accounts []types.Account
	Err      string
}

// Ok reports whether the response carries accounts rather than an error.
func (p *ResponsePacket) Ok() bool { return p.Err == "" }

// OkResponse builds a successful response for the given account states.
func OkResponse(accounts ...types.Account) *ResponsePacket {
	return &ResponsePacket{Accounts: accounts}
}

// ErrResponse builds an error response from a business error. The message
// is truncated to what a single TLV value can carry.
func ErrResponse(err error) *ResponsePacket {
	msg := err.Error()
	if len(msg) > tlv.MaxLen {
		msg = msg[:tlv.MaxLen]
	}
	return &ResponsePacket{Err: msg}
}

func (*CreatePacket) Name() string     { return "Create" }
func (*DepositPacket) Name() string    { return "Deposit" }
func (*WithdrawPacket) Name() string   { return "Withdraw" }
func (*MovePacket) Name() string       { return "Move" }
func (*GetBalancePacket) Name() string { return "GetBalance" }
func (*QuitPacket) Name() string       { return "Quit" }
func (*ByePacket) Name() string        { return "Bye" }
func (*ResponsePacket) Name() string   { return "Response" }

func (*CreatePacket) Kind() byte     { return TypeIDOpCreate }
func (*DepositPacket) Kind() byte    { return TypeIDOpDeposit }
func (*WithdrawPacket) Kind() byte   { return TypeIDOpWithdraw }
func (*MovePacket) Kind() byte       { return TypeIDOpMove }
func (*GetBalancePacket) Kind() byte { return TypeIDOpGetBalance }
func (*QuitPacket) Kind() byte       { return TypeIDQuit }
func (*ByePacket) Kind() byte        { return TypeIDBye }
func (*ResponsePacket) Kind() byte   { return TypeIDResponse }

// Encode serializes a packet into its TLV byte form.
func Encode(p Packet) ([]byte, error) {
	switch p := p.(type) {
	case *CreatePacket:
		op, err := appendAccountID(nil, p.Account)
		if err != nil {
			return nil, err
		}
		return encodeRequest(TypeIDOpCreate, op)

	case *DepositPacket:
		op, err := appendAccountID(nil, p.Account)
		if err != nil {
			return nil, err
		}
		op = tlv.AppendUint32(op, TypeIDAmount, p.Amount.Uint32())
		return encodeRequest(TypeIDOpDeposit, op)

	case *WithdrawPacket:
		op, err := appendAccountID(nil, p.Account)
		if err != nil {
			return nil, err
		}
		op = tlv.AppendUint32(op, TypeIDAmount, p.Amount.Uint32())
		return encodeRequest(TypeIDOpWithdraw, op)

	case *MovePacket:
		op, err := appendAccountID(nil, p.From)
		if err != nil {
			return nil, err
		}
		op, err = appendAccountID(op, p.To)
		if err != nil {
			return nil, err
		}
		op = tlv.AppendUint32(op, TypeIDAmount, p.Amount.Uint32())
		return encodeRequest(TypeIDOpMove, op)

	case *GetBalancePacket:
		op, err := appendAccountID(nil, p.Account)
		if err != nil {
			return nil, err
		}
		return encodeRequest(TypeIDOpGetBalance, op)

	case *QuitPacket:
		return tlv.AppendEmpty(nil, TypeIDQuit), nil

	case *ByePacket:
		return tlv.AppendEmpty(nil, TypeIDBye), nil

	case *ResponsePacket:
		return encodeResponse(p)

	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", p)
	}
}

// encodeRequest wraps an encoded operation body into the operation tag and
// the request envelope.
func encodeRequest(opTag byte, body []byte) ([]byte, error) {
	op, err := tlv.Append(nil, opTag, body)
	if err != nil {
		return nil, err
	}
	return tlv.Append(nil, TypeIDRequest, op)
}

func encodeResponse(p *ResponsePacket) ([]byte, error) {
	var result []byte
	if p.Ok() {
		var vecBody []byte
		for _, account := range p.Accounts {
			accBody, err := appendAccountID(nil, account.ID)
			if err != nil {
				return nil, err
			}
			accBody = tlv.AppendUint32(accBody, TypeIDMoney, uint32(account.Balance))
			vecBody, err = tlv.Append(vecBody, TypeIDAccount, accBody)
			if err != nil {
				return nil, err
			}
		}
		vec, err := tlv.Append(nil, TypeIDVec, vecBody)
		if err != nil {
			return nil, err
		}
		result, err = tlv.Append(nil, TypeIDResultOk, vec)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		result, err = tlv.AppendString(nil, TypeIDResultErr, p.Err)
		if err != nil {
			return nil, err
		}
	}
	return tlv.Append(nil, TypeIDResponse, result)
}

// appendAccountID encodes an account id, enforcing the id constraints at
// encode time so oversized ids never reach the wire.
func appendAccountID(buf []byte, id types.AccountID) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return tlv.AppendString(buf, TypeIDAccountID, string(id))
}

// Decode parses one packet from its TLV byte form. Any violation of the
// encoding yields an error wrapping ErrInvalidMessage.
func Decode(data []byte) (Packet, error) {
	s := tlv.NewStream(data)
	typ, err := s.Peek()
	if err != nil {
		return nil, invalid(err)
	}

	var packet Packet
	switch typ {
	case TypeIDRequest:
		body, err := s.Expect(TypeIDRequest)
		if err != nil {
			return nil, invalid(err)
		}
		packet, err = decodeOperation(body)
		if err != nil {
			return nil, err
		}

	case TypeIDResponse:
		body, err := s.Expect(TypeIDResponse)
		if err != nil {
			return nil, invalid(err)
		}
		packet, err = decodeResponse(body)
		if err != nil {
			return nil, err
		}

	case TypeIDQuit, TypeIDBye:
		body, err := s.Expect(typ)
		if err != nil {
			return nil, invalid(err)
		}
		if len(body) != 0 {
			return nil, invalid(fmt.Errorf("control message %d carries %d payload bytes", typ, len(body)))
		}
		if typ == TypeIDQuit {
			packet = &QuitPacket{}
		} else {
			packet = &ByePacket{}
		}

	default:
		return nil, invalid(fmt.Errorf("unknown message type id %d", typ))
	}

	if err := s.End(); err != nil {
		return nil, invalid(err)
	}
	return packet, nil
}

func decodeOperation(body []byte) (Packet, error) {
	s := tlv.NewStream(body)
	opTag, err := s.Peek()
	if err != nil {
		return nil, invalid(err)
	}
	opBody, err := s.Expect(opTag)
	if err != nil {
		return nil, invalid(err)
	}
	if err := s.End(); err != nil {
		return nil, invalid(err)
	}

	fields := tlv.NewStream(opBody)
	var packet Packet
	switch opTag {
	case TypeIDOpCreate:
		id, err := decodeAccountID(fields)
		if err != nil {
			return nil, err
		}
		packet = &CreatePacket{Account: id}

	case TypeIDOpDeposit, TypeIDOpWithdraw:
		id, err := decodeAccountID(fields)
		if err != nil {
			return nil, err
		}
		amount, err := decodeAmount(fields)
		if err != nil {
			return nil, err
		}
		if opTag == TypeIDOpDeposit {
			packet = &DepositPacket{Account: id, Amount: amount}
		} else {
			packet = &WithdrawPacket{Account: id, Amount: amount}
		}

	case TypeIDOpMove:
		from, err := decodeAccountID(fields)
		if err != nil {
			return nil, err
		}
		to, err := decodeAccountID(fields)
		if err != nil {
			return nil, err
		}
		amount, err := decodeAmount(fields)
		if err != nil {
			return nil, err
		}
		packet = &MovePacket{From: from, To: to, Amount: amount}

	case TypeIDOpGetBalance:
		id, err := decodeAccountID(fields)
		if err != nil {
			return nil, err
		}
		packet = &GetBalancePacket{Account: id}

	default:
		return nil, invalid(fmt.Errorf("unknown operation type id %d", opTag))
	}

	if err := fields.End(); err != nil {
		return nil, invalid(err)
	}
	return packet, nil
}

func decodeResponse(body []byte) (Packet, error) {
	s := tlv.NewStream(body)
	typ, err := s.Peek()
	if err != nil {
		return nil, invalid(err)
	}
	switch typ {
	case TypeIDResultOk:
		okBody, err := s.Expect(TypeIDResultOk)
		if err != nil {
			return nil, invalid(err)
		}
		if err := s.End(); err != nil {
			return nil, invalid(err)
		}
		inner := tlv.NewStream(okBody)
		vecBody, err := inner.Expect(TypeIDVec)
		if err != nil {
			return nil, invalid(err)
		}
		if err := inner.End(); err != nil {
			return nil, invalid(err)
		}
		resp := &ResponsePacket{}
		vec := tlv.NewStream(vecBody)
		for vec.More() {
			accBody, err := vec.Expect(TypeIDAccount)
			if err != nil {
				return nil, invalid(err)
			}
			fields := tlv.NewStream(accBody)
			id, err := decodeAccountID(fields)
			if err != nil {
				return nil, err
			}
			balance, err := fields.Uint32(TypeIDMoney)
			if err != nil {
				return nil, invalid(err)
			}
			if err := fields.End(); err != nil {
				return nil, invalid(err)
			}
			resp.Accounts = append(resp.Accounts, types.Account{ID: id, Balance: types.Money(balance)})
		}
		return resp, nil

	case TypeIDResultErr:
		msg, err := s.String(TypeIDResultErr)
		if err != nil {
			return nil, invalid(err)
		}
		if err := s.End(); err != nil {
			return nil, invalid(err)
		}
		if msg == "" {
			return nil, invalid(errors.New("empty error message"))
		}
		return &ResponsePacket{Err: msg}, nil

	default:
		return nil, invalid(fmt.Errorf("unknown result type id %d", typ))
	}
}

func decodeAccountID(s *tlv.Stream) (types.AccountID, error) {
	raw, err := s.String(TypeIDAccountID)
	if err != nil {
		return "", invalid(err)
	}
	id := types.AccountID(raw)
	if err := id.Validate(); err != nil {
		return "", invalid(err)
	}
	return id, nil
}

func decodeAmount(s *tlv.Stream) (types.Amount, error) {
	v, err := s.Uint32(TypeIDAmount)
	if err != nil {
		return types.Amount{}, invalid(err)
	}
	amount, err := types.NewAmount(v)
	if err != nil {
		return types.Amount{}, invalid(err)
	}
	return amount, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
}
