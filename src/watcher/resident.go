package watcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"screen-lookup/src/messages"
)

// Resident line protocol over loopback TCP. One request line per connection:
//
//	PING            -> PONG
//	CAPTURE         -> OK <token> | BUSY | ERROR <msg>
//	LOOKUP <text>   -> OK <token> | BUSY | ERROR <msg>
const (
	ResidentHost = "127.0.0.1"

	cmdPing    = "PING"
	cmdCapture = "CAPTURE"
	cmdLookup  = "LOOKUP"

	replyPong  = "PONG"
	replyOK    = "OK"
	replyBusy  = "BUSY"
	replyError = "ERROR"

	connDeadline = 3 * time.Second
)

// Resident accepts capture and lookup requests from other local processes.
type Resident struct {
	addr   string
	region messages.Region
	logger zerolog.Logger

	mu  sync.Mutex
	lis net.Listener
}

// NewResident serves on addr; use port 0 for an ephemeral port.
func NewResident(addr string, region messages.Region, logger zerolog.Logger) *Resident {
	return &Resident{
		addr:   addr,
		region: region,
		logger: logger.With().Str("component", "resident").Logger(),
	}
}

// ResidentAddr is the loopback address for port.
func ResidentAddr(port int) string { return net.JoinHostPort(ResidentHost, strconv.Itoa(port)) }

func (r *Resident) Name() string { return "resident" }

// Listen binds the address. Run calls it when needed.
func (r *Resident) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lis != nil {
		return nil
	}
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("resident: failed to bind %s: %w", r.addr, err)
	}
	r.lis = lis
	r.logger.Info().Str("addr", lis.Addr().String()).Msg("resident listening")
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (r *Resident) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lis == nil {
		return ""
	}
	return r.lis.Addr().String()
}

func (r *Resident) Run(ctx context.Context, sub Submitter) error {
	if err := r.Listen(); err != nil {
		return err
	}
	r.mu.Lock()
	lis := r.lis
	r.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = lis.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		c, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.serve(ctx, c, sub)
		}()
	}
}

func (r *Resident) serve(ctx context.Context, c net.Conn, sub Submitter) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(connDeadline))
	remote := c.RemoteAddr().String()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && line == "" {
		r.logger.Debug().Err(err).Str("remote", remote).Msg("no request line")
		return
	}
	reply := r.handle(ctx, strings.TrimRight(line, "\r\n"), sub)
	r.logger.Debug().Str("remote", remote).Str("request", line).Str("reply", reply).Msg("resident request")
	_, _ = c.Write([]byte(reply + "\n"))
}

func (r *Resident) handle(ctx context.Context, line string, sub Submitter) string {
	cmd, arg, _ := strings.Cut(line, " ")
	var req messages.Request
	switch strings.ToUpper(cmd) {
	case cmdPing:
		return replyPong
	case cmdCapture:
		req = messages.Request{
			Kind:    messages.KindCapture,
			Payload: messages.Payload{Region: r.region},
			Source:  messages.SourceResident,
		}
	case cmdLookup:
		text := strings.TrimSpace(arg)
		if text == "" {
			return replyError + " empty lookup text"
		}
		req = messages.Request{
			Kind:    messages.KindLookup,
			Payload: messages.Payload{Text: text},
			Source:  messages.SourceResident,
		}
	default:
		return fmt.Sprintf("%s unknown command %q", replyError, cmd)
	}

	tok, err := submit(ctx, sub, req, r.logger)
	switch {
	case err == nil:
		return fmt.Sprintf("%s %d", replyOK, uint64(tok))
	case errors.Is(err, messages.ErrBusy):
		return replyBusy
	default:
		return replyError + " " + err.Error()
	}
}

// ResidentClient talks to a running resident.
type ResidentClient struct {
	Addr    string
	Timeout time.Duration
}

func NewResidentClient(port int) *ResidentClient {
	return &ResidentClient{Addr: ResidentAddr(port), Timeout: 2 * time.Second}
}

// Ping reports whether a resident answers on Addr.
func (c *ResidentClient) Ping(ctx context.Context) bool {
	reply, err := c.roundTrip(ctx, cmdPing)
	return err == nil && reply == replyPong
}

// Capture asks the resident to capture its configured region.
func (c *ResidentClient) Capture(ctx context.Context) (messages.Token, error) {
	return c.request(ctx, cmdCapture)
}

// Lookup asks the resident to look text up.
func (c *ResidentClient) Lookup(ctx context.Context, text string) (messages.Token, error) {
	text = strings.Join(strings.Fields(text), " ")
	return c.request(ctx, cmdLookup+" "+text)
}

func (c *ResidentClient) request(ctx context.Context, line string) (messages.Token, error) {
	reply, err := c.roundTrip(ctx, line)
	if err != nil {
		return 0, err
	}
	status, rest, _ := strings.Cut(reply, " ")
	switch status {
	case replyOK:
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad token %q", messages.ErrProtocol, rest)
		}
		return messages.Token(n), nil
	case replyBusy:
		return 0, messages.ErrBusy
	case replyError:
		return 0, fmt.Errorf("resident: %s", rest)
	default:
		return 0, fmt.Errorf("%w: unexpected reply %q", messages.ErrProtocol, reply)
	}
}

func (c *ResidentClient) roundTrip(ctx context.Context, line string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < timeout {
			timeout = d
		}
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return "", err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(reply, "\r\n"), nil
}
