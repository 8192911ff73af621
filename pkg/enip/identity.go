package enip

import (
	"encoding/binary"
	"fmt"
)

// Identity is the CIP identity object reported in a ListIdentity reply.
type Identity struct {
	VendorID      uint16 `json:"vendor_id"`
	DeviceType    uint16 `json:"device_type"`
	ProductCode   uint16 `json:"product_code"`
	RevisionMajor uint8  `json:"revision_major"`
	RevisionMinor uint8  `json:"revision_minor"`
	Status        uint16 `json:"status"`
	SerialNumber  uint32 `json:"serial_number"`
	ProductName   string `json:"product_name"`
	State         uint8  `json:"state"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (vendor %d, product %d, rev %d.%d, serial 0x%08X)",
		id.ProductName, id.VendorID, id.ProductCode, id.RevisionMajor, id.RevisionMinor, id.SerialNumber)
}

// identity item body: protocol version(2) + socket address(16) + fixed fields(14) + name length(1)
const minIdentityItem = 2 + 16 + 14 + 1

// ParseListIdentity decodes a full ListIdentity reply packet and returns the first identity item.
func ParseListIdentity(data []byte) (Identity, error) {
	var id Identity

	h, payload, err := DecodeHeader(data)
	if err != nil {
		return id, fmt.Errorf("decode header: %w", err)
	}
	if h.Command != CommandListIdentity {
		return id, fmt.Errorf("unexpected command: 0x%04X", h.Command)
	}
	if h.Status != StatusSuccess {
		return id, fmt.Errorf("encapsulation error status: 0x%08X", h.Status)
	}
	if len(payload) < 2 {
		return id, fmt.Errorf("missing item count")
	}

	count := binary.LittleEndian.Uint16(payload[0:2])
	offset := 2
	for i := 0; i < int(count); i++ {
		if len(payload) < offset+4 {
			return id, fmt.Errorf("item %d: truncated item header", i)
		}
		itemType := binary.LittleEndian.Uint16(payload[offset : offset+2])
		itemLen := int(binary.LittleEndian.Uint16(payload[offset+2 : offset+4]))
		offset += 4
		if len(payload) < offset+itemLen {
			return id, fmt.Errorf("item %d: length %d exceeds payload", i, itemLen)
		}
		if itemType == itemTypeIdentity {
			return parseIdentityItem(payload[offset : offset+itemLen])
		}
		offset += itemLen
	}
	return id, fmt.Errorf("no identity item in reply")
}

func parseIdentityItem(item []byte) (Identity, error) {
	var id Identity
	if len(item) < minIdentityItem {
		return id, fmt.Errorf("identity item too short: %d bytes", len(item))
	}

	// Skip encapsulation protocol version and the big-endian socket address.
	offset := 2 + 16

	id.VendorID = binary.LittleEndian.Uint16(item[offset:])
	id.DeviceType = binary.LittleEndian.Uint16(item[offset+2:])
	id.ProductCode = binary.LittleEndian.Uint16(item[offset+4:])
	id.RevisionMajor = item[offset+6]
	id.RevisionMinor = item[offset+7]
	id.Status = binary.LittleEndian.Uint16(item[offset+8:])
	id.SerialNumber = binary.LittleEndian.Uint32(item[offset+10:])
	offset += 14

	nameLen := int(item[offset])
	offset++
	if len(item) < offset+nameLen {
		return id, fmt.Errorf("product name length %d exceeds item", nameLen)
	}
	id.ProductName = string(item[offset : offset+nameLen])
	offset += nameLen

	// State is optional on some older adapters.
	if offset < len(item) {
		id.State = item[offset]
	}
	return id, nil
}

// EncodeIdentityReply builds a ListIdentity reply. Used by simulators and tests.
func EncodeIdentityReply(senderContext [8]byte, id Identity) []byte {
	item := make([]byte, 0, minIdentityItem+len(id.ProductName)+1)
	item = binary.LittleEndian.AppendUint16(item, 1)
	// sin_family(2) sin_port(2) sin_addr(4) zero(8), all big-endian
	sock := make([]byte, 16)
	binary.BigEndian.PutUint16(sock[0:2], 2)
	binary.BigEndian.PutUint16(sock[2:4], DefaultPort)
	item = append(item, sock...)
	item = binary.LittleEndian.AppendUint16(item, id.VendorID)
	item = binary.LittleEndian.AppendUint16(item, id.DeviceType)
	item = binary.LittleEndian.AppendUint16(item, id.ProductCode)
	item = append(item, id.RevisionMajor, id.RevisionMinor)
	item = binary.LittleEndian.AppendUint16(item, id.Status)
	item = binary.LittleEndian.AppendUint32(item, id.SerialNumber)
	item = append(item, byte(len(id.ProductName)))
	item = append(item, id.ProductName...)
	item = append(item, id.State)

	var data []byte
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint16(data, itemTypeIdentity)
	data = binary.LittleEndian.AppendUint16(data, uint16(len(item)))
	data = append(data, item...)

	return Encode(Header{Command: CommandListIdentity, SenderContext: senderContext}, data)
}
