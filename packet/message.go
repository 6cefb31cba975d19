package packet

import (
	"fmt"
	"strconv"
	"time"
)

const (
	TimeFormat = "2006-01-02T15:04:05.000"
)

// Message is a packet interpreted by a layout.
type Message struct {
	Packet Packet
	Layout Layout
}

func NewMessage(p Packet, l Layout) Message {
	return Message{Packet: p, Layout: l}
}

func (msg Message) Code() string {
	return Hexify(msg.Packet)
}

func (msg Message) Command() uint32 {
	return msg.Layout.GetCommand(msg.Packet)
}

func (msg Message) CommandName() string {
	return msg.Layout.CommandName(msg.Command())
}

func (msg Message) RollingCode() uint32 {
	return msg.Layout.GetCode(msg.Packet)
}

func (msg Message) String() string {
	return fmt.Sprintf("{Code:%s Command:%s RollingCode:%d}", msg.Code(), msg.CommandName(), msg.RollingCode())
}

func (msg Message) Record() (r []string) {
	r = append(r, msg.Code())
	r = append(r, msg.CommandName())
	r = append(r, strconv.FormatUint(uint64(msg.RollingCode()), 10))
	return r
}

// MarshalText lets encoders that only understand text (json map keys, xml
// attributes) see the hex code.
func (p Packet) MarshalText() ([]byte, error) {
	return []byte(Hexify(p)), nil
}

func (p *Packet) UnmarshalText(text []byte) (err error) {
	*p, err = Dehexify(string(text))
	return err
}

// A LogMessage associates a message with the time it was received and which
// occurrence within the frame it was.
type LogMessage struct {
	Time        time.Time `xml:",attr" json:"time"`
	Code        string    `xml:",attr" json:"code"`
	Command     string    `xml:",attr" json:"command"`
	RollingCode uint32    `xml:",attr" json:"rolling_code"`

	Message Message `xml:"-" json:"-"`
}

func NewLogMessage(t time.Time, msg Message) LogMessage {
	return LogMessage{
		Time:        t,
		Code:        msg.Code(),
		Command:     msg.CommandName(),
		RollingCode: msg.RollingCode(),
		Message:     msg,
	}
}

func (msg LogMessage) String() string {
	return fmt.Sprintf("{Time:%s %s}", msg.Time.Format(TimeFormat), msg.Message)
}

func (msg LogMessage) Header() []string {
	return []string{"time", "code", "command", "rolling_code"}
}

func (msg LogMessage) Record() (r []string) {
	r = append(r, msg.Time.Format(time.RFC3339Nano))
	r = append(r, msg.Message.Record()...)
	return r
}

// A FilterChain takes a list of filters and applies them iteratively to
// messages sent through the chain.
type FilterChain []MessageFilter

func (fc *FilterChain) Add(filter MessageFilter) {
	*fc = append(*fc, filter)
}

func (fc FilterChain) Match(msg Message) bool {
	for _, filter := range fc {
		if !filter.Filter(msg) {
			return false
		}
	}

	return true
}

type MessageFilter interface {
	Filter(Message) bool
}

// UniqueFilter rejects a message carrying the same packet as the message
// before it. A fob sends every code twice per press, so this collapses both
// deliveries of a frame into one.
type UniqueFilter struct {
	last  Packet
	valid bool
}

func NewUniqueFilter() *UniqueFilter {
	return &UniqueFilter{}
}

func (uf *UniqueFilter) Filter(msg Message) bool {
	if uf.valid && uf.last == msg.Packet {
		return false
	}

	uf.last = msg.Packet
	uf.valid = true
	return true
}

// CommandFilter accepts only messages whose command name is in the set.
type CommandFilter map[string]bool

func (cf CommandFilter) Filter(msg Message) bool {
	return cf[msg.CommandName()]
}
