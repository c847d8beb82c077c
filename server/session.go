package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/ledgerd/ledgerd/core"
	"github.com/ledgerd/ledgerd/protocol"
)

var (
	requestCounter  = metrics.GetOrRegisterCounter("server/requests", nil)
	rejectCounter   = metrics.GetOrRegisterCounter("server/requests/rejected", nil)
	protoErrCounter = metrics.GetOrRegisterCounter("server/protocol/errors", nil)
)

// session serves one connection: read a packet, run it against the ledger,
// write the answer, repeat. Business failures are answered in-band and the
// session continues; protocol violations and transport errors end it.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	ledger *core.Ledger
	log    *zap.Logger

	closeOnce sync.Once
}

func newSession(conn net.Conn, ledger *core.Ledger, log *zap.Logger) *session {
	return &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		ledger: ledger,
		log:    log,
	}
}

// close tears the connection down, unblocking any pending read.
func (s *session) close() {
	s.closeOnce.Do(func() { s.conn.Close() })
}

func (s *session) run() {
	defer s.close()
	s.log.Debug("session opened")

	for {
		packet, err := protocol.ReadMsg(s.reader)
		if err != nil {
			s.readFailed(err)
			return
		}

		switch packet := packet.(type) {
		case *protocol.QuitPacket:
			if err := protocol.WriteMsg(s.writer, &protocol.ByePacket{}); err != nil {
				s.log.Debug("bye not delivered", zap.Error(err))
			}
			s.log.Debug("session closed by client")
			return

		case *protocol.ByePacket, *protocol.ResponsePacket:
			protoErrCounter.Inc(1)
			s.log.Warn("client sent a server-side message", zap.String("msg", packet.Name()))
			return

		default:
			requestCounter.Inc(1)
			resp := s.handle(packet)
			if !resp.Ok() {
				rejectCounter.Inc(1)
				s.log.Debug("request rejected",
					zap.String("msg", packet.Name()), zap.String("reason", resp.Err))
			}
			if err := protocol.WriteMsg(s.writer, resp); err != nil {
				s.log.Warn("response write failed", zap.Error(err))
				return
			}
		}
	}
}

// readFailed classifies a ReadMsg error. A malformed message still gets an
// in-band error answer before the session dies, so a buggy client sees why
// it was cut off. A vanished peer just gets logged.
func (s *session) readFailed(err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.log.Debug("session closed by peer")
	case errors.Is(err, net.ErrClosed):
		s.log.Debug("session closed by server")
	case errors.Is(err, protocol.ErrInvalidMessage),
		errors.Is(err, protocol.ErrEmptyFrame),
		errors.Is(err, protocol.ErrFrameTooLarge):
		protoErrCounter.Inc(1)
		s.log.Warn("terminating session on protocol violation", zap.Error(err))
		if werr := protocol.WriteMsg(s.writer, protocol.ErrResponse(err)); werr != nil {
			s.log.Debug("violation notice not delivered", zap.Error(werr))
		}
	default:
		protoErrCounter.Inc(1)
		s.log.Warn("terminating session on read error", zap.Error(err))
	}
}

// handle runs one request against the ledger and shapes the outcome into a
// response packet.
func (s *session) handle(packet protocol.Packet) *protocol.ResponsePacket {
	switch packet := packet.(type) {
	case *protocol.CreatePacket:
		account, err := s.ledger.CreateAccount(packet.Account)
		if err != nil {
			return protocol.ErrResponse(err)
		}
		return protocol.OkResponse(account)

	case *protocol.DepositPacket:
		account, err := s.ledger.Deposit(packet.Account, packet.Amount)
		if err != nil {
			return protocol.ErrResponse(err)
		}
		return protocol.OkResponse(account)

	case *protocol.WithdrawPacket:
		account, err := s.ledger.Withdraw(packet.Account, packet.Amount)
		if err != nil {
			return protocol.ErrResponse(err)
		}
		return protocol.OkResponse(account)

	case *protocol.MovePacket:
		from, to, err := s.ledger.Move(packet.From, packet.To, packet.Amount)
		if err != nil {
			return protocol.ErrResponse(err)
		}
		return protocol.OkResponse(from, to)

	case *protocol.GetBalancePacket:
		account, err := s.ledger.Balance(packet.Account)
		if err != nil {
			return protocol.ErrResponse(err)
		}
		return protocol.OkResponse(account)

	default:
		return protocol.ErrResponse(errors.New("unsupported request"))
	}
}
