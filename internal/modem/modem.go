// Package modem drives a cellular modem over its AT command serial line to
// send text messages.
package modem

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/smazurov/sitemon/internal/logging"
)

const (
	ctrlZ  = 0x1A
	escape = 0x1B

	// pollInterval bounds each blocking read so the response deadline is honoured.
	pollInterval = 100 * time.Millisecond
)

// Sentinel errors, matched with errors.Is through *Error.
var (
	ErrTimeout  = errors.New("modem response timeout")
	ErrRejected = errors.New("modem rejected command")
	ErrNoPrompt = errors.New("modem did not prompt for message body")
	ErrInvalid  = errors.New("invalid argument")
)

// Error describes a failed AT exchange.
type Error struct {
	Command  string
	Response string
	Err      error
}

func (e *Error) Error() string {
	if e.Response == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v (%q)", e.Command, e.Err, e.Response)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Port is the serial line. go.bug.st/serial ports satisfy it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Functionality is the AT+CFUN level.
type Functionality int

// Functionality levels.
const (
	FunctionalityMinimum Functionality = 0
	FunctionalityFull    Functionality = 1
)

// MessageFormat is the AT+CMGF mode.
type MessageFormat int

// Message formats.
const (
	FormatPDU  MessageFormat = 0
	FormatText MessageFormat = 1
)

// Identification is the product information reported by ATI.
type Identification struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Revision     string `json:"revision"`
	SVN          string `json:"svn"`
	IMEI         string `json:"imei"`
	GCAP         string `json:"gcap"`
}

// Modem serializes AT exchanges on one port.
type Modem struct {
	port        Port
	timeout     time.Duration
	sendTimeout time.Duration
	logger      logging.Logger

	mu    sync.Mutex
	ident Identification
}

// Option configures a Modem.
type Option func(*Modem)

// WithSendTimeout bounds the wait for the network to accept a message.
func WithSendTimeout(d time.Duration) Option {
	return func(m *Modem) {
		m.sendTimeout = d
	}
}

// Open opens path at baud 8N1 and runs Init.
func Open(path string, baud int, timeout time.Duration, logger logging.Logger, opts ...Option) (*Modem, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open modem %s: %w", path, err)
	}

	m := New(port, timeout, logger, opts...)
	if err := m.Init(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return m, nil
}

// New wraps an open port. timeout bounds each command response.
func New(port Port, timeout time.Duration, logger logging.Logger, opts ...Option) *Modem {
	if logger == nil {
		logger = logging.GetLogger("modem")
	}
	m := &Modem{
		port:        port,
		timeout:     timeout,
		sendTimeout: 60 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init checks liveness, reads identification and selects text mode with the
// GSM character set.
func (m *Modem) Init() error {
	if err := m.Ping(); err != nil {
		return err
	}
	ident, err := m.Identify()
	if err != nil {
		return err
	}
	if err := m.SetMessageFormat(FormatText); err != nil {
		return err
	}
	if err := m.SetCharset("GSM"); err != nil {
		return err
	}
	m.logger.Info("Modem ready", "manufacturer", ident.Manufacturer, "model", ident.Model, "imei", ident.IMEI)
	return nil
}

// Ping sends AT and expects OK.
func (m *Modem) Ping() error {
	_, err := m.command("AT", m.timeout)
	return err
}

// Identify runs ATI and parses its key: value lines.
func (m *Modem) Identify() (Identification, error) {
	resp, err := m.command("ATI", m.timeout)
	if err != nil {
		return Identification{}, err
	}
	ident := parseIdentification(resp)

	m.mu.Lock()
	m.ident = ident
	m.mu.Unlock()
	return ident, nil
}

// Identification returns what the last Identify read.
func (m *Modem) Identification() Identification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ident
}

// SetMessageFormat sends AT+CMGF.
func (m *Modem) SetMessageFormat(f MessageFormat) error {
	_, err := m.command(fmt.Sprintf("AT+CMGF=%d", f), m.timeout)
	return err
}

// SetCharset sends AT+CSCS.
func (m *Modem) SetCharset(charset string) error {
	_, err := m.command(fmt.Sprintf("AT+CSCS=%q", charset), m.timeout)
	return err
}

// SetFunctionality sends AT+CFUN. Radios need a few seconds to come up, so
// the send timeout applies.
func (m *Modem) SetFunctionality(f Functionality) error {
	_, err := m.command(fmt.Sprintf("AT+CFUN=%d", f), m.sendTimeout)
	return err
}

// SendMessage sends text to destination with AT+CMGS. The modem must be in
// text mode.
func (m *Modem) SendMessage(destination, text string) error {
	if !validDestination(destination) {
		return &Error{Command: "AT+CMGS", Err: fmt.Errorf("%w: destination %q", ErrInvalid, destination)}
	}
	if strings.ContainsAny(text, string([]byte{ctrlZ, escape})) {
		return &Error{Command: "AT+CMGS", Err: fmt.Errorf("%w: message contains control characters", ErrInvalid)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := fmt.Sprintf("AT+CMGS=%q", destination)
	if err := m.write(cmd + "\r"); err != nil {
		return &Error{Command: cmd, Err: err}
	}
	resp, err := m.await(m.timeout, func(s string) bool { return strings.Contains(s, ">") || terminal(s) != nil })
	if err != nil {
		return &Error{Command: cmd, Response: resp, Err: err}
	}
	if !strings.Contains(resp, ">") {
		if result := terminal(resp); result != nil && !errors.Is(result, errOK) {
			return &Error{Command: cmd, Response: resp, Err: result}
		}
		return &Error{Command: cmd, Response: resp, Err: ErrNoPrompt}
	}

	if err := m.write(text + string(rune(ctrlZ))); err != nil {
		return &Error{Command: cmd, Err: err}
	}
	resp, err = m.await(m.sendTimeout, func(s string) bool { return terminal(s) != nil })
	if err != nil {
		return &Error{Command: cmd, Response: resp, Err: err}
	}
	if result := terminal(resp); !errors.Is(result, errOK) {
		return &Error{Command: cmd, Response: resp, Err: result}
	}
	m.logger.Debug("Message sent", "destination", destination, "length", len(text))
	return nil
}

// Close closes the port.
func (m *Modem) Close() error {
	return m.port.Close()
}

// command writes cmd and waits for OK or an error result.
func (m *Modem) command(cmd string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(cmd + "\r"); err != nil {
		return "", &Error{Command: cmd, Err: err}
	}
	resp, err := m.await(timeout, func(s string) bool { return terminal(s) != nil })
	if err != nil {
		return resp, &Error{Command: cmd, Response: resp, Err: err}
	}
	if result := terminal(resp); !errors.Is(result, errOK) {
		return resp, &Error{Command: cmd, Response: resp, Err: result}
	}
	m.logger.Debug("AT command", "command", cmd, "response", strings.TrimSpace(resp))
	return resp, nil
}

func (m *Modem) write(s string) error {
	// stale unsolicited output would be mistaken for this command's reply
	if err := m.port.ResetInputBuffer(); err != nil {
		return err
	}
	_, err := io.WriteString(m.port, s)
	return err
}

// await reads until done reports true for the accumulated response or
// timeout elapses.
func (m *Modem) await(timeout time.Duration, done func(string) bool) (string, error) {
	if err := m.port.SetReadTimeout(min(pollInterval, timeout)); err != nil {
		return "", err
	}

	var sb strings.Builder
	buf := make([]byte, 256)
	deadline := time.Now().Add(timeout)
	for {
		n, err := m.port.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
			if done(sb.String()) {
				return sb.String(), nil
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return sb.String(), err
		}
		if time.Now().After(deadline) {
			return sb.String(), ErrTimeout
		}
	}
}

var errOK = errors.New("ok")

// terminal returns errOK, ErrRejected or nil when no final result code has
// arrived yet.
func terminal(resp string) error {
	for _, line := range strings.FieldsFunc(resp, func(r rune) bool { return r == '\r' || r == '\n' }) {
		line = strings.TrimSpace(line)
		switch {
		case line == "OK":
			return errOK
		case line == "ERROR", strings.HasPrefix(line, "+CME ERROR"), strings.HasPrefix(line, "+CMS ERROR"):
			return fmt.Errorf("%w: %s", ErrRejected, line)
		}
	}
	return nil
}

func parseIdentification(resp string) Identification {
	var ident Identification
	for _, line := range strings.Split(resp, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Manufacturer":
			ident.Manufacturer = value
		case "Model":
			ident.Model = value
		case "Revision":
			ident.Revision = value
		case "SVN":
			ident.SVN = value
		case "IMEI":
			ident.IMEI = value
		case "+GCAP":
			ident.GCAP = value
		}
	}
	return ident
}

func validDestination(dest string) bool {
	digits := strings.TrimPrefix(dest, "+")
	if len(digits) < 3 || len(digits) > 20 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
