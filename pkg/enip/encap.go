package enip

import (
	"encoding/binary"
	"fmt"
)

// Encapsulation commands used by the identity query.
const (
	CommandListIdentity uint16 = 0x0063
	CommandListServices uint16 = 0x0004

	StatusSuccess uint32 = 0x00000000

	HeaderSize = 24

	// DefaultPort is the registered EtherNet/IP port for explicit messaging.
	DefaultPort = 44818

	itemTypeIdentity uint16 = 0x000C
)

// Header is the fixed 24-byte encapsulation header. All fields are little-endian on the wire.
type Header struct {
	Command       uint16
	Length        uint16
	SessionID     uint32
	Status        uint32
	SenderContext [8]byte
	Options       uint32
}

// Encode writes the header followed by data.
func Encode(h Header, data []byte) []byte {
	packet := make([]byte, HeaderSize, HeaderSize+len(data))
	binary.LittleEndian.PutUint16(packet[0:2], h.Command)
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(data)))
	binary.LittleEndian.PutUint32(packet[4:8], h.SessionID)
	binary.LittleEndian.PutUint32(packet[8:12], h.Status)
	copy(packet[12:20], h.SenderContext[:])
	binary.LittleEndian.PutUint32(packet[20:24], h.Options)
	return append(packet, data...)
}

// DecodeHeader splits a packet into its header and payload.
func DecodeHeader(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, fmt.Errorf("packet too short: %d bytes (minimum %d)", len(data), HeaderSize)
	}

	var h Header
	h.Command = binary.LittleEndian.Uint16(data[0:2])
	h.Length = binary.LittleEndian.Uint16(data[2:4])
	h.SessionID = binary.LittleEndian.Uint32(data[4:8])
	h.Status = binary.LittleEndian.Uint32(data[8:12])
	copy(h.SenderContext[:], data[12:20])
	h.Options = binary.LittleEndian.Uint32(data[20:24])

	payload := data[HeaderSize:]
	if int(h.Length) > len(payload) {
		return h, nil, fmt.Errorf("truncated payload: header says %d bytes, got %d", h.Length, len(payload))
	}
	return h, payload[:h.Length], nil
}

// BuildListIdentity builds a ListIdentity request. The request carries no data.
func BuildListIdentity(senderContext [8]byte) []byte {
	return Encode(Header{
		Command:       CommandListIdentity,
		SenderContext: senderContext,
	}, nil)
}
