package modem

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePort answers each written line with a scripted reply. Lines without a
// script entry get no answer.
type fakePort struct {
	mu      sync.Mutex
	replies map[string]string
	pending bytes.Buffer
	written []string
	closed  bool
}

func newFakePort(replies map[string]string) *fakePort {
	return &fakePort{replies: replies}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		p.mu.Lock()
		return 0, nil
	}
	return p.pending.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := string(b)
	p.written = append(p.written, s)
	if reply, ok := p.replies[s]; ok {
		p.pending.WriteString(reply)
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Reset()
	return nil
}

func (p *fakePort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

const atiReply = "ATI\r\r\nManufacturer: SIMCOM INCORPORATED\r\nModel: SIMCOM_SIM7600G-H\r\nRevision: SIM7600M22_V1.1\r\nSVN: 01\r\nIMEI: 868822040061788\r\n+GCAP: +CGSM,+FCLASS,+DS\r\n\r\nOK\r\n"

func healthyReplies() map[string]string {
	return map[string]string{
		"AT\r":                       "AT\r\r\nOK\r\n",
		"ATI\r":                      atiReply,
		"AT+CMGF=1\r":                "\r\nOK\r\n",
		"AT+CSCS=\"GSM\"\r":          "\r\nOK\r\n",
		"AT+CFUN=1\r":                "\r\nOK\r\n",
		"AT+CFUN=0\r":                "\r\nOK\r\n",
		"AT+CMGS=\"+15551234567\"\r": "\r\n> ",
		"Motion detected\x1a":        "\r\n+CMGS: 12\r\n\r\nOK\r\n",
	}
}

func TestInit(t *testing.T) {
	port := newFakePort(healthyReplies())
	m := New(port, time.Second, nil)

	if err := m.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	want := Identification{
		Manufacturer: "SIMCOM INCORPORATED",
		Model:        "SIMCOM_SIM7600G-H",
		Revision:     "SIM7600M22_V1.1",
		SVN:          "01",
		IMEI:         "868822040061788",
		GCAP:         "+CGSM,+FCLASS,+DS",
	}
	if got := m.Identification(); got != want {
		t.Errorf("Identification() = %+v, want %+v", got, want)
	}

	wantWritten := []string{"AT\r", "ATI\r", "AT+CMGF=1\r", "AT+CSCS=\"GSM\"\r"}
	got := port.Written()
	if strings.Join(got, "|") != strings.Join(wantWritten, "|") {
		t.Errorf("written = %q, want %q", got, wantWritten)
	}
}

func TestSendMessage(t *testing.T) {
	port := newFakePort(healthyReplies())
	m := New(port, time.Second, nil)

	if err := m.SendMessage("+15551234567", "Motion detected"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	got := port.Written()
	if len(got) != 2 || got[1] != "Motion detected\x1a" {
		t.Errorf("written = %q", got)
	}
}

func TestSendMessageFailures(t *testing.T) {
	tests := []struct {
		name    string
		dest    string
		text    string
		replies map[string]string
		want    error
	}{
		{
			name: "bad destination",
			dest: "call me", text: "hi",
			want: ErrInvalid,
		},
		{
			name: "ctrl-z in body",
			dest: "+15551234567", text: "a\x1ab",
			want: ErrInvalid,
		},
		{
			name:    "no prompt",
			dest:    "+15551234567",
			text:    "Motion detected",
			replies: map[string]string{"AT+CMGS=\"+15551234567\"\r": "\r\nOK\r\n"},
			want:    ErrNoPrompt,
		},
		{
			name:    "rejected before prompt",
			dest:    "+15551234567",
			text:    "Motion detected",
			replies: map[string]string{"AT+CMGS=\"+15551234567\"\r": "\r\n+CMS ERROR: 330\r\n"},
			want:    ErrRejected,
		},
		{
			name: "network rejects",
			dest: "+15551234567",
			text: "Motion detected",
			replies: map[string]string{
				"AT+CMGS=\"+15551234567\"\r": "> ",
				"Motion detected\x1a":        "\r\nERROR\r\n",
			},
			want: ErrRejected,
		},
		{
			name:    "silent modem",
			dest:    "+15551234567",
			text:    "Motion detected",
			replies: map[string]string{},
			want:    ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(newFakePort(tt.replies), 30*time.Millisecond, nil, WithSendTimeout(30*time.Millisecond))
			err := m.SendMessage(tt.dest, tt.text)
			if !errors.Is(err, tt.want) {
				t.Fatalf("SendMessage() error = %v, want %v", err, tt.want)
			}
			var merr *Error
			if !errors.As(err, &merr) || !strings.HasPrefix(merr.Command, "AT+CMGS") {
				t.Errorf("error %v is not a CMGS *Error", err)
			}
		})
	}
}

func TestCommandErrors(t *testing.T) {
	port := newFakePort(map[string]string{"AT\r": "\r\nERROR\r\n"})
	m := New(port, 30*time.Millisecond, nil, WithSendTimeout(30*time.Millisecond))

	err := m.Ping()
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("Ping() error = %v, want ErrRejected", err)
	}
	if !strings.Contains(err.Error(), "AT: ") {
		t.Errorf("error lacks command: %v", err)
	}

	if err := m.SetFunctionality(FunctionalityFull); !errors.Is(err, ErrTimeout) {
		t.Errorf("SetFunctionality() error = %v, want ErrTimeout", err)
	}
}

func TestSetFunctionality(t *testing.T) {
	port := newFakePort(healthyReplies())
	m := New(port, time.Second, nil)

	if err := m.SetFunctionality(FunctionalityFull); err != nil {
		t.Fatal(err)
	}
	if err := m.SetFunctionality(FunctionalityMinimum); err != nil {
		t.Fatal(err)
	}
	got := port.Written()
	if got[0] != "AT+CFUN=1\r" || got[1] != "AT+CFUN=0\r" {
		t.Errorf("written = %q", got)
	}
}

func TestParseIdentificationPartial(t *testing.T) {
	ident := parseIdentification("Manufacturer: Quectel\nbogus line\nIMEI:123\n")
	if ident.Manufacturer != "Quectel" || ident.IMEI != "123" || ident.Model != "" {
		t.Errorf("parseIdentification() = %+v", ident)
	}
}

func TestValidDestination(t *testing.T) {
	for dest, want := range map[string]bool{
		"+15551234567": true,
		"5551234":      true,
		"+1":           false,
		"":             false,
		"555-1234":     false,
	} {
		if got := validDestination(dest); got != want {
			t.Errorf("validDestination(%q) = %v, want %v", dest, got, want)
		}
	}
}

func TestClose(t *testing.T) {
	port := newFakePort(nil)
	if err := New(port, time.Second, nil).Close(); err != nil || !port.closed {
		t.Errorf("Close() = %v, closed = %v", err, port.closed)
	}
}
