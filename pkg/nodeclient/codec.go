package nodeclient

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// wireControl is the XDR-marshalable projection of Control. XDR has no
// native map type, so Meta is flattened to parallel key/value slices for
// the wire and restored to a map on decode.
type wireControl struct {
	MessageType     string
	RequestID       string
	CollectionID    int64
	Key             string
	Timestamp       int64
	SegmentNum      int32
	Sequence        int32
	TotalSize       int64
	FileAdler32     uint32
	FileMD5         []byte
	SegmentSize     int64
	ZfecPaddingSize int32
	MetaKeys        []string
	MetaValues      []string
	Result          string
	ErrorMessage    string
	HandoffOf       string
	IsTombstone     bool
	SegmentCount    int32
	ShardAdler32    uint32
	ShardMD5        []byte
}

func toWire(c Control) wireControl {
	w := wireControl{
		MessageType:     string(c.MessageType),
		RequestID:       c.RequestID,
		CollectionID:    c.CollectionID,
		Key:             c.Key,
		Timestamp:       c.Timestamp,
		SegmentNum:      int32(c.SegmentNum),
		Sequence:        int32(c.Sequence),
		TotalSize:       c.TotalSize,
		FileAdler32:     c.FileAdler32,
		FileMD5:         c.FileMD5,
		SegmentSize:     c.SegmentSize,
		ZfecPaddingSize: int32(c.ZfecPaddingSize),
		Result:          c.Result,
		ErrorMessage:    c.ErrorMessage,
		HandoffOf:       c.HandoffOf,
		IsTombstone:     c.IsTombstone,
		SegmentCount:    int32(c.SegmentCount),
		ShardAdler32:    c.ShardAdler32,
		ShardMD5:        c.ShardMD5,
	}
	for k, v := range c.Meta {
		w.MetaKeys = append(w.MetaKeys, k)
		w.MetaValues = append(w.MetaValues, v)
	}
	return w
}

func fromWire(w wireControl) Control {
	c := Control{
		MessageType:     MessageType(w.MessageType),
		RequestID:       w.RequestID,
		CollectionID:    w.CollectionID,
		Key:             w.Key,
		Timestamp:       w.Timestamp,
		SegmentNum:      int(w.SegmentNum),
		Sequence:        int(w.Sequence),
		TotalSize:       w.TotalSize,
		FileAdler32:     w.FileAdler32,
		FileMD5:         w.FileMD5,
		SegmentSize:     w.SegmentSize,
		ZfecPaddingSize: int(w.ZfecPaddingSize),
		Result:          w.Result,
		ErrorMessage:    w.ErrorMessage,
		HandoffOf:       w.HandoffOf,
		IsTombstone:     w.IsTombstone,
		SegmentCount:    int(w.SegmentCount),
		ShardAdler32:    w.ShardAdler32,
		ShardMD5:        w.ShardMD5,
	}
	if len(w.MetaKeys) > 0 {
		c.Meta = make(map[string]string, len(w.MetaKeys))
		for i, k := range w.MetaKeys {
			if i < len(w.MetaValues) {
				c.Meta[k] = w.MetaValues[i]
			}
		}
	}
	return c
}

// EncodeMessage marshals a Message to XDR bytes and wraps it in a single
// record-marking fragment (4-byte big-endian length with the top bit set
// to mark it the last and only fragment), the same framing the node
// protocol's callback channel uses for length-delimited TCP messages.
func EncodeMessage(msg Message) ([]byte, error) {
	var body bytes.Buffer
	if _, err := xdr.Marshal(&body, msg.Identity); err != nil {
		return nil, fmt.Errorf("nodeclient: marshal identity: %w", err)
	}
	if _, err := xdr.Marshal(&body, toWire(msg.Control)); err != nil {
		return nil, fmt.Errorf("nodeclient: marshal control: %w", err)
	}
	if _, err := xdr.Marshal(&body, msg.Body); err != nil {
		return nil, fmt.Errorf("nodeclient: marshal payload: %w", err)
	}

	return frame(body.Bytes()), nil
}

// DecodeMessage reads one record-marked message from r.
func DecodeMessage(r io.Reader) (*Message, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewReader(payload)

	var identity string
	if _, err := xdr.Unmarshal(buf, &identity); err != nil {
		return nil, fmt.Errorf("nodeclient: unmarshal identity: %w", err)
	}

	var wc wireControl
	if _, err := xdr.Unmarshal(buf, &wc); err != nil {
		return nil, fmt.Errorf("nodeclient: unmarshal control: %w", err)
	}

	var body []byte
	if _, err := xdr.Unmarshal(buf, &body); err != nil {
		return nil, fmt.Errorf("nodeclient: unmarshal payload: %w", err)
	}

	return &Message{Identity: identity, Control: fromWire(wc), Body: body}, nil
}

const lastFragmentBit = uint32(1) << 31

func frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, lastFragmentBit|uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	marker := binary.BigEndian.Uint32(hdr[:])
	length := marker &^ lastFragmentBit
	if marker&lastFragmentBit == 0 {
		return nil, fmt.Errorf("nodeclient: multi-fragment records not supported")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("nodeclient: short read of framed payload: %w", err)
	}

	return payload, nil
}
