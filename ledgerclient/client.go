// Package ledgerclient is the Go client of the ledger service. A Client
// wraps one connection and offers the ledger operations as method calls;
// business rejections come back as *RemoteError so callers can tell them
// apart from transport trouble.
package ledgerclient

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ledgerd/ledgerd/core/types"
	"github.com/ledgerd/ledgerd/protocol"
)

// RemoteError is a business rejection reported by the server in-band. The
// session stays usable after one.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "ledger: " + e.Msg
}

// Client is a synchronous ledger session. Methods may be called from
// multiple goroutines; requests are serialized over the single connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

// Dial connects to a ledger server.
func Dial(addr string) (*Client, error) {
	return DialTimeout(addr, 0)
}

// DialTimeout connects with a bound on connection establishment. A zero
// timeout means no bound.
func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}, nil
}

// CreateAccount registers a new account and returns its initial state.
func (c *Client) CreateAccount(id types.AccountID) (types.Account, error) {
	return c.single(&protocol.CreatePacket{Account: id})
}

// Deposit adds amount to an account and returns its new state.
func (c *Client) Deposit(id types.AccountID, amount types.Amount) (types.Account, error) {
	return c.single(&protocol.DepositPacket{Account: id, Amount: amount})
}

// Withdraw removes amount from an account and returns its new state.
func (c *Client) Withdraw(id types.AccountID, amount types.Amount) (types.Account, error) {
	return c.single(&protocol.WithdrawPacket{Account: id, Amount: amount})
}

// Move transfers amount between two accounts and returns their states in
// (from, to) order.
func (c *Client) Move(from, to types.AccountID, amount types.Amount) (types.Account, types.Account, error) {
	resp, err := c.roundTrip(&protocol.MovePacket{From: from, To: to, Amount: amount})
	if err != nil {
		return types.Account{}, types.Account{}, err
	}
	if len(resp.Accounts) != 2 {
		return types.Account{}, types.Account{}, fmt.Errorf("ledger: transfer answered with %d accounts, want 2", len(resp.Accounts))
	}
	return resp.Accounts[0], resp.Accounts[1], nil
}

// Balance returns the current state of an account.
func (c *Client) Balance(id types.AccountID) (types.Account, error) {
	return c.single(&protocol.GetBalancePacket{Account: id})
}

// Quit performs the session farewell and closes the connection. The client
// is unusable afterwards.
func (c *Client) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.conn.Close()

	if err := protocol.WriteMsg(c.writer, &protocol.QuitPacket{}); err != nil {
		return err
	}
	reply, err := protocol.ReadMsg(c.reader)
	if err != nil {
		return err
	}
	if _, ok := reply.(*protocol.ByePacket); !ok {
		return fmt.Errorf("ledger: quit answered with %s", reply.Name())
	}
	return nil
}

// Close drops the connection without the farewell exchange.
func (c *Client) Close() error {
	return c.conn.Close()
}

// single runs a request whose success response carries exactly one account.
func (c *Client) single(req protocol.Packet) (types.Account, error) {
	resp, err := c.roundTrip(req)
	if err != nil {
		return types.Account{}, err
	}
	if len(resp.Accounts) != 1 {
		return types.Account{}, fmt.Errorf("ledger: %s answered with %d accounts, want 1", req.Name(), len(resp.Accounts))
	}
	return resp.Accounts[0], nil
}

func (c *Client) roundTrip(req protocol.Packet) (*protocol.ResponsePacket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := protocol.WriteMsg(c.writer, req); err != nil {
		return nil, err
	}
	reply, err := protocol.ReadMsg(c.reader)
	if err != nil {
		return nil, err
	}
	resp, ok := reply.(*protocol.ResponsePacket)
	if !ok {
		return nil, fmt.Errorf("ledger: %s answered with %s", req.Name(), reply.Name())
	}
	if !resp.Ok() {
		return nil, &RemoteError{Msg: resp.Err}
	}
	return resp, nil
}
