package nodeclient

// MessageType identifies the RPC verb carried in a Control header.
type MessageType string

const (
	MsgArchiveStart  MessageType = "archive-start"
	MsgArchiveNext   MessageType = "archive-next"
	MsgArchiveFinal  MessageType = "archive-final"
	MsgDestroyKey    MessageType = "destroy-key"
	MsgRetrieveStart MessageType = "retrieve-start"
	MsgRetrieveNext  MessageType = "retrieve-next"
	MsgRetrieveFinal MessageType = "retrieve-final"
)

// Control is the structured header carried alongside raw shard bytes in
// every node RPC message, per the wire contract in spec §6. The gateway
// never inspects node-side storage layout; Control is the entire
// negotiated surface between gateway and node.
type Control struct {
	MessageType     MessageType       `xdr:"message_type"`
	RequestID       string            `xdr:"request_id"`
	CollectionID    int64             `xdr:"collection_id"`
	Key             string            `xdr:"key"`
	Timestamp       int64             `xdr:"timestamp"`
	SegmentNum      int               `xdr:"segment_num"`
	Sequence        int               `xdr:"sequence"`
	TotalSize       int64             `xdr:"total_size"`
	FileAdler32     uint32            `xdr:"file_adler32"`
	FileMD5         []byte            `xdr:"file_md5"`
	SegmentSize     int64             `xdr:"segment_size"`
	ZfecPaddingSize int               `xdr:"zfec_padding_size"`
	Meta            map[string]string `xdr:"meta"`
	Result          string            `xdr:"result"`
	ErrorMessage    string            `xdr:"error_message"`

	// HandoffOf, when non-empty, tags this message as a handoff copy
	// destined for the named primary node rather than the node it was
	// actually sent to.
	HandoffOf string `xdr:"handoff_of"`

	// Retrieve-start reply fields (spec §3 Retrieve transaction).
	IsTombstone  bool   `xdr:"is_tombstone"`
	SegmentCount int    `xdr:"segment_count"`
	ShardAdler32 uint32 `xdr:"shard_adler32"`
	ShardMD5     []byte `xdr:"shard_md5"`
}

// Message is the (identity, control, body) triple exchanged with a node.
type Message struct {
	Identity string
	Control  Control
	Body     []byte
}

// Reply is the decoded response to a Message, correlated by RequestID.
type Reply struct {
	RequestID string
	Control   Control
	Body      []byte
}

// Ok reports whether the node reported success in Control.Result.
func (r *Reply) Ok() bool {
	return r.Control.Result == "ok" || r.Control.Result == ""
}

// NotFound reports whether the node reported the key as absent.
func (r *Reply) NotFound() bool {
	return r.Control.Result == "not_found"
}

// StartInfo is the decoded retrieve_start reply payload described in
// spec §3 (Retrieve transaction).
type StartInfo struct {
	Timestamp    int64
	IsTombstone  bool
	SegmentCount int
	SliceSize    int64
	TotalSize    int64
	FileAdler32  uint32
	FileMD5      []byte
	ShardAdler32 uint32
	ShardMD5     []byte
}
