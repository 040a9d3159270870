package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bowlofstew/nimbus.io/pkg/cluster"
	"github.com/bowlofstew/nimbus.io/pkg/gateway"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
	"github.com/bowlofstew/nimbus.io/pkg/signing"
)

// --- fake node server: a minimal in-memory storage node speaking the
// real wire protocol, so the router/Application/Archiver/Retriever/
// Destroyer/Segmenter/Slicer pipeline is exercised end to end. ---

type storedObject struct {
	shards      [][]byte
	timestamp   int64
	totalSize   int64
	fileAdler32 uint32
	fileMD5     []byte
	tombstone   bool
}

type fakeNode struct {
	mu      sync.Mutex
	objects map[string]*storedObject
}

func newFakeNode() *fakeNode {
	return &fakeNode{objects: make(map[string]*storedObject)}
}

func objectKey(collectionID int64, key string) string {
	return fmt.Sprintf("%d/%s", collectionID, key)
}

func (n *fakeNode) serve(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go n.handleConn(conn)
	}
}

func (n *fakeNode) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		msg, err := nodeclient.DecodeMessage(conn)
		if err != nil {
			return
		}
		reply := n.handle(msg.Control, msg.Body)
		encoded, err := nodeclient.EncodeMessage(nodeclient.Message{Control: reply.Control, Body: reply.Body})
		if err != nil {
			return
		}
		if _, err := conn.Write(encoded); err != nil {
			return
		}
	}
}

func (n *fakeNode) handle(ctl nodeclient.Control, body []byte) *nodeclient.Reply {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := objectKey(ctl.CollectionID, ctl.Key)

	switch ctl.MessageType {
	case nodeclient.MsgArchiveStart:
		n.objects[key] = &storedObject{shards: [][]byte{body}, timestamp: ctl.Timestamp}
		ctl.Result = "ok"
		return &nodeclient.Reply{Control: ctl, Body: nil}

	case nodeclient.MsgArchiveNext:
		obj := n.objects[key]
		obj.shards = append(obj.shards, body)
		ctl.Result = "ok"
		return &nodeclient.Reply{Control: ctl, Body: nil}

	case nodeclient.MsgArchiveFinal:
		obj, existed := n.objects[key]
		var priorSize int64
		if existed {
			priorSize = obj.totalSize
			obj.shards = append(obj.shards, body)
		} else {
			obj = &storedObject{shards: [][]byte{body}, timestamp: ctl.Timestamp}
			n.objects[key] = obj
		}
		obj.totalSize = ctl.TotalSize
		obj.fileAdler32 = ctl.FileAdler32
		obj.fileMD5 = ctl.FileMD5
		obj.timestamp = ctl.Timestamp

		reply := ctl
		reply.Result = "ok"
		reply.TotalSize = priorSize
		return &nodeclient.Reply{Control: reply, Body: nil}

	case nodeclient.MsgDestroyKey:
		if obj, ok := n.objects[key]; ok {
			obj.tombstone = true
		}
		ctl.Result = "ok"
		return &nodeclient.Reply{Control: ctl, Body: nil}

	case nodeclient.MsgRetrieveStart:
		obj, ok := n.objects[key]
		if !ok || obj.tombstone {
			reply := ctl
			reply.Result = "not_found"
			return &nodeclient.Reply{Control: reply, Body: nil}
		}
		reply := ctl
		reply.Result = "ok"
		reply.Timestamp = obj.timestamp
		reply.SegmentCount = len(obj.shards)
		reply.SegmentSize = int64(len(obj.shards[0]))
		reply.TotalSize = obj.totalSize
		reply.FileAdler32 = obj.fileAdler32
		reply.FileMD5 = obj.fileMD5
		return &nodeclient.Reply{Control: reply, Body: obj.shards[0]}

	case nodeclient.MsgRetrieveNext, nodeclient.MsgRetrieveFinal:
		obj := n.objects[key]
		reply := ctl
		reply.Result = "ok"
		return &nodeclient.Reply{Control: reply, Body: obj.shards[ctl.Sequence]}

	default:
		reply := ctl
		reply.Result = "error"
		reply.ErrorMessage = "unrecognized message type"
		return &nodeclient.Reply{Control: reply, Body: nil}
	}
}

// --- fake collaborators ---

type fakeCollections struct {
	mu          sync.Mutex
	byName      map[string]int64 // name -> collectionID
	userOf      map[int64]int64  // collectionID -> userID
	secrets     map[string][2]interface{}
	defaultColl int64
}

func newFakeCollections() *fakeCollections {
	return &fakeCollections{
		byName: map[string]int64{"bucket1": 100},
		userOf: map[int64]int64{100: 1},
		secrets: map[string][2]interface{}{
			"key1": {int64(1), []byte("sekrit-key-material")},
		},
		defaultColl: 100,
	}
}

func (f *fakeCollections) Resolve(ctx context.Context, name string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byName[name]
	if !ok {
		return 0, 0, fmt.Errorf("no such collection %q", name)
	}
	return f.userOf[id], id, nil
}

func (f *fakeCollections) UserForKey(ctx context.Context, keyID string) (int64, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.secrets[keyID]
	if !ok {
		return 0, nil, fmt.Errorf("unknown key %q", keyID)
	}
	return entry[0].(int64), entry[1].([]byte), nil
}

func (f *fakeCollections) CreateCollection(ctx context.Context, userID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.byName) + 100)
	f.byName[name] = id
	f.userOf[id] = userID
	return id, nil
}

func (f *fakeCollections) DeleteCollection(ctx context.Context, userID int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byName, name)
	return nil
}

func (f *fakeCollections) ListCollections(ctx context.Context, userID int64) ([]gateway.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.CollectionInfo
	for name, id := range f.byName {
		if f.userOf[id] != userID {
			continue
		}
		out = append(out, gateway.CollectionInfo{Name: name, ID: id, IsDefault: id == f.defaultColl})
	}
	return out, nil
}

func (f *fakeCollections) SpaceUsage(ctx context.Context, collectionID int64) (int64, error) {
	return 4096, nil
}

func (f *fakeCollections) IsDefaultCollection(ctx context.Context, collectionID int64) (bool, error) {
	return collectionID == f.defaultColl, nil
}

type fakeIndex struct {
	mu    sync.Mutex
	stats map[string]*gateway.KeyStat
	keys  map[int64][]string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{stats: make(map[string]*gateway.KeyStat), keys: make(map[int64][]string)}
}

func (f *fakeIndex) SizeLookup(ctx context.Context, collectionID int64, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat, ok := f.stats[objectKey(collectionID, key)]
	if !ok {
		return 0, nil
	}
	return stat.Size, nil
}

func (f *fakeIndex) Stat(ctx context.Context, collectionID int64, key string) (*gateway.KeyStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat, ok := f.stats[objectKey(collectionID, key)]
	if !ok {
		return nil, nil
	}
	return stat, nil
}

func (f *fakeIndex) ListMatch(ctx context.Context, collectionID int64, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, k := range f.keys[collectionID] {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeIndex) RecordArchive(ctx context.Context, collectionID int64, key string, timestamp int64, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[objectKey(collectionID, key)] = &gateway.KeyStat{Size: size, Timestamp: timestamp}
	f.keys[collectionID] = append(f.keys[collectionID], key)
	return nil
}

func (f *fakeIndex) RecordDestroy(ctx context.Context, collectionID int64, key string, timestamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stats, objectKey(collectionID, key))
	return nil
}

type fakeAccounting struct {
	mu       sync.Mutex
	added    []int64
	retrieved []int64
	removed  []int64
}

func (f *fakeAccounting) Added(ctx context.Context, collectionID, timestamp, bytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, bytes)
}

func (f *fakeAccounting) Retrieved(ctx context.Context, collectionID, timestamp, bytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieved = append(f.retrieved, bytes)
}

func (f *fakeAccounting) Removed(ctx context.Context, collectionID, timestamp, bytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, bytes)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []gateway.Event
}

func (f *fakeEvents) Push(ctx context.Context, event gateway.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

// --- test harness ---

type testHarness struct {
	app     *gateway.Application
	server  *httptest.Server
	index   *fakeIndex
	acct    *fakeAccounting
	events  *fakeEvents
	clients []*nodeclient.ResilientClient
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	const n, k, h = 3, 2, 2
	nodes := make([]cluster.Node, n)
	clust := cluster.New(nodes, k, h)
	clients := make([]*nodeclient.ResilientClient, n)

	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		fn := newFakeNode()
		go fn.serve(l)
		t.Cleanup(func() { l.Close() })

		name := fmt.Sprintf("node%d", i+1)
		nodes[i] = cluster.Node{Name: name, Addr: l.Addr().String(), SegmentNum: i + 1}

		rc := nodeclient.NewResilientClient(name, l.Addr().String(), time.Second)
		if err := clust.RegisterClient(name, rc); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		if err := rc.Connect(context.Background()); err != nil {
			t.Fatalf("connect %s: %v", name, err)
		}
		clients[i] = rc
	}

	index := newFakeIndex()
	acct := &fakeAccounting{}
	events := &fakeEvents{}

	app := gateway.New(clust, newFakeCollections(), index, acct, events, gateway.Config{
		SliceSize:    1 << 20,
		ReplyTimeout: 2 * time.Second,
	}, nil)

	srv := httptest.NewServer(gateway.NewRouter(app))
	t.Cleanup(srv.Close)

	return &testHarness{app: app, server: srv, index: index, acct: acct, events: events, clients: clients}
}

func signedRequest(t *testing.T, method, url string, body io.Reader, contentLength int64) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentLength >= 0 {
		req.ContentLength = contentLength
	}
	ts := time.Now().Unix()
	sig := signing.Sign([]byte("sekrit-key-material"), method, ts)
	req.Header.Set("Authorization", "DIYAPI key1:"+sig)
	req.Header.Set("X-DIYAPI-Timestamp", strconv.FormatInt(ts, 10))
	return req
}

func TestArchiveRetrieveDeleteRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	payload := []byte("the quick brown fox jumps over the lazy dog")

	archiveReq := signedRequest(t, http.MethodPost, h.server.URL+"/data/bucket1/myfile", bytes.NewReader(payload), int64(len(payload)))
	resp, err := client.Do(archiveReq)
	if err != nil {
		t.Fatalf("archive request: %v", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on archive, got %d: %s", resp.StatusCode, respBody)
	}

	headReq := signedRequest(t, http.MethodHead, h.server.URL+"/data/bucket1/myfile", nil, -1)
	resp, err = client.Do(headReq)
	if err != nil {
		t.Fatalf("head request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on head after archive, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Length") != strconv.Itoa(len(payload)) {
		t.Fatalf("expected Content-Length %d, got %s", len(payload), resp.Header.Get("Content-Length"))
	}

	retrieveReq := signedRequest(t, http.MethodGet, h.server.URL+"/data/bucket1/myfile", nil, -1)
	resp, err = client.Do(retrieveReq)
	if err != nil {
		t.Fatalf("retrieve request: %v", err)
	}
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on retrieve, got %d: %s", resp.StatusCode, got)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("retrieved content mismatch: got %q, want %q", got, payload)
	}

	deleteReq := signedRequest(t, http.MethodDelete, h.server.URL+"/data/bucket1/myfile", nil, -1)
	resp, err = client.Do(deleteReq)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", resp.StatusCode)
	}

	headReq2 := signedRequest(t, http.MethodHead, h.server.URL+"/data/bucket1/myfile", nil, -1)
	resp, err = client.Do(headReq2)
	if err != nil {
		t.Fatalf("head request after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on head after delete, got %d", resp.StatusCode)
	}

	h.acct.mu.Lock()
	defer h.acct.mu.Unlock()
	if len(h.acct.added) != 1 || h.acct.added[0] != int64(len(payload)) {
		t.Fatalf("expected one Added(%d) call, got %v", len(payload), h.acct.added)
	}
	if len(h.acct.removed) != 1 || h.acct.removed[0] != int64(len(payload)) {
		t.Fatalf("expected one Removed(%d) call, got %v", len(payload), h.acct.removed)
	}
}

// TestRetrieveToleratesADownNode asserts the Retriever's own K-of-N
// tolerance absorbs a down node, rather than the read path silently
// rerouting that node's segment to handoff backups that never received
// it (handoff is write-only, per spec §4.6-§4.7).
func TestRetrieveToleratesADownNode(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	payload := []byte("erasure coded across three storage nodes")

	archiveReq := signedRequest(t, http.MethodPost, h.server.URL+"/data/bucket1/myfile", bytes.NewReader(payload), int64(len(payload)))
	resp, err := client.Do(archiveReq)
	if err != nil {
		t.Fatalf("archive request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on archive, got %d", resp.StatusCode)
	}

	// Take one of the three nodes down. N=3, K=2: the Retriever must
	// still reconstruct the payload from the remaining two.
	h.clients[0].Close()

	retrieveReq := signedRequest(t, http.MethodGet, h.server.URL+"/data/bucket1/myfile", nil, -1)
	resp, err = client.Do(retrieveReq)
	if err != nil {
		t.Fatalf("retrieve request: %v", err)
	}
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on retrieve with one node down, got %d: %s", resp.StatusCode, got)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("retrieved content mismatch with one node down: got %q, want %q", got, payload)
	}
}

func TestAdminConnectDisconnectNode(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	nodeConnected := func() bool {
		resp, err := client.Get(h.server.URL + "/health")
		if err != nil {
			t.Fatalf("health request: %v", err)
		}
		defer resp.Body.Close()
		var stats struct {
			Nodes map[string]bool `json:"Nodes"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			t.Fatalf("decode health: %v", err)
		}
		return stats.Nodes["node1"]
	}

	if !nodeConnected() {
		t.Fatal("expected node1 connected at harness start")
	}

	resp, err := client.Post(h.server.URL+"/admin/nodes/node1/disconnect", "application/json", nil)
	if err != nil {
		t.Fatalf("disconnect request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on disconnect, got %d", resp.StatusCode)
	}
	if nodeConnected() {
		t.Fatal("expected node1 disconnected after admin disconnect")
	}

	resp, err = client.Post(h.server.URL+"/admin/nodes/node1/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("connect request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on connect, got %d", resp.StatusCode)
	}
	if !nodeConnected() {
		t.Fatal("expected node1 connected again after admin connect")
	}

	resp, err = client.Post(h.server.URL+"/admin/nodes/not-a-node/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("connect unknown node request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatal("expected a non-200 status connecting an unconfigured node name")
	}
}

func TestArchiveRejectsMissingContentLength(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	req := signedRequest(t, http.MethodPost, h.server.URL+"/data/bucket1/nofile", bytes.NewReader(nil), 0)
	req.ContentLength = 0
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for missing Content-Length, got %d", resp.StatusCode)
	}
}

func TestArchiveRejectsUnknownCollection(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	req := signedRequest(t, http.MethodPost, h.server.URL+"/data/nosuchbucket/file", bytes.NewReader([]byte("x")), 1)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown collection, got %d", resp.StatusCode)
	}
}

func TestRequestsRejectBadSignature(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/data/bucket1/myfile", nil)
	ts := time.Now().Unix()
	req.Header.Set("Authorization", "DIYAPI key1:"+signing.Sign([]byte("wrong-secret"), http.MethodGet, ts))
	req.Header.Set("X-DIYAPI-Timestamp", strconv.FormatInt(ts, 10))

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", resp.StatusCode)
	}
}

func TestListMatchReturnsArchivedKeys(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	for _, name := range []string{"alpha-one", "alpha-two", "beta-three"} {
		req := signedRequest(t, http.MethodPost, h.server.URL+"/data/bucket1/"+name, bytes.NewReader([]byte("x")), 1)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("archive %s: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("archive %s: expected 200, got %d", name, resp.StatusCode)
		}
	}

	req := signedRequest(t, http.MethodGet, h.server.URL+"/data/bucket1/?action=listmatch&prefix=alpha-", nil, -1)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("listmatch: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if !bytes.Contains(body, []byte("alpha-one")) || !bytes.Contains(body, []byte("alpha-two")) {
		t.Fatalf("expected alpha-* keys in listmatch response, got %s", body)
	}
	if bytes.Contains(body, []byte("beta-three")) {
		t.Fatalf("expected beta-three excluded by prefix filter, got %s", body)
	}
}

func TestCollectionCRUD(t *testing.T) {
	h := newTestHarness(t)
	client := h.server.Client()

	createReq := signedRequest(t, http.MethodPost, h.server.URL+"/collections/newbucket", nil, -1)
	resp, err := client.Do(createReq)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on create, got %d", resp.StatusCode)
	}

	listReq := signedRequest(t, http.MethodGet, h.server.URL+"/collections/", nil, -1)
	resp, err = client.Do(listReq)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(body, []byte("newbucket")) {
		t.Fatalf("expected newbucket in list, got %s", body)
	}

	deleteDefaultReq := signedRequest(t, http.MethodDelete, h.server.URL+"/collections/bucket1", nil, -1)
	resp, err = client.Do(deleteDefaultReq)
	if err != nil {
		t.Fatalf("delete default: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 deleting the default collection, got %d", resp.StatusCode)
	}
}
