// Package cluster holds the gateway's process-wide, long-lived node
// clients: a typed handle owned by the Application singleton and passed
// by reference to per-request components, per spec §9 ("Global clients
// as process state").
package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
)

// Node is one entry in the static ordered node list: its name, address,
// and 1-based segment number (the index+1 of the node in that list).
type Node struct {
	Name       string
	Addr       string
	SegmentNum int
}

// Cluster is the registry of N ResilientClients, one per configured
// node, shared by all concurrent requests. The send queues inside each
// client are the synchronization point; Cluster itself only exposes
// snapshot reads and construction of per-request handoff wrappers.
type Cluster struct {
	mu      sync.RWMutex
	nodes   []Node
	clients map[string]*nodeclient.ResilientClient // keyed by node name
	k       int
	h       int
}

// New builds a Cluster for the given ordered node list, K (minimum
// shards to decode), and H (handoff fan-out per down node).
func New(nodes []Node, k, h int) *Cluster {
	c := &Cluster{
		nodes:   nodes,
		clients: make(map[string]*nodeclient.ResilientClient, len(nodes)),
		k:       k,
		h:       h,
	}
	return c
}

// RegisterClient attaches a constructed ResilientClient for a configured
// node name. Returns an error if the name is unknown or already
// registered.
func (c *Cluster) RegisterClient(nodeName string, client *nodeclient.ResilientClient) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := false
	for _, n := range c.nodes {
		if n.Name == nodeName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("cluster: %q is not a configured node", nodeName)
	}
	if _, exists := c.clients[nodeName]; exists {
		return fmt.Errorf("cluster: client for %q already registered", nodeName)
	}

	c.clients[nodeName] = client
	return nil
}

// ConnectAll dials every registered client concurrently, logging but not
// failing on individual dial errors — a node starting disconnected is a
// normal, handled state, not a startup failure.
func (c *Cluster) ConnectAll(ctx context.Context) {
	c.mu.RLock()
	clients := make([]*nodeclient.ResilientClient, 0, len(c.clients))
	for _, cl := range c.clients {
		clients = append(clients, cl)
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(clients))
	for _, cl := range clients {
		cl := cl
		go func() {
			defer wg.Done()
			_ = cl.Connect(ctx)
		}()
	}
	wg.Wait()
}

// N returns the configured cluster size.
func (c *Cluster) N() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// K returns the minimum shard count needed to decode.
func (c *Cluster) K() int { return c.k }

// H returns the handoff fan-out per down node.
func (c *Cluster) H() int { return c.h }

// Nodes returns a copy of the ordered node list.
func (c *Cluster) Nodes() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// ConnectedCount returns how many of the N clients currently report
// connected=true.
func (c *Cluster) ConnectedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, cl := range c.clients {
		if cl.Connected() {
			count++
		}
	}
	return count
}

// NodeStatus returns, for each registered node name, whether its client
// currently reports connected=true. Used to drive the per-node
// connectivity gauge (pkg/metrics) from an operator-facing poller.
func (c *Cluster) NodeStatus() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := make(map[string]bool, len(c.clients))
	for name, cl := range c.clients {
		status[name] = cl.Connected()
	}
	return status
}

// ClientsFor builds one nodeclient.Client per configured node for a
// single request: a direct handle for connected nodes, or a HandoffClient
// wrapping H distinct connected backups for a disconnected node, chosen
// uniformly at random. Returns an error if fewer than K nodes are
// connected — the Application must reject the request with 503 before
// calling this.
func (c *Cluster) ClientsFor() ([]ClientHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var connectedNames []string
	for _, n := range c.nodes {
		if cl, ok := c.clients[n.Name]; ok && cl.Connected() {
			connectedNames = append(connectedNames, n.Name)
		}
	}
	if len(connectedNames) < c.k {
		return nil, fmt.Errorf("cluster: only %d of %d nodes connected, need at least %d", len(connectedNames), len(c.nodes), c.k)
	}

	handles := make([]ClientHandle, 0, len(c.nodes))
	for _, n := range c.nodes {
		cl, ok := c.clients[n.Name]
		if ok && cl.Connected() {
			handles = append(handles, ClientHandle{Node: n, Client: cl})
			continue
		}

		backupNames := sampleDistinct(connectedNames, n.Name, c.h)
		backups := make([]nodeclient.Client, 0, len(backupNames))
		for _, bn := range backupNames {
			backups = append(backups, c.clients[bn])
		}
		for len(backups) < 2 {
			// Degrade gracefully if H < 2 is configured: repeat the last
			// backup so HandoffClient's fixed two-slot shape still holds.
			backups = append(backups, backups[len(backups)-1])
		}

		handles = append(handles, ClientHandle{
			Node:   n,
			Client: nodeclient.NewHandoffClient(n.Name, backups[0], backups[1]),
		})
	}

	return handles, nil
}

// ReadersFor builds one direct client handle per configured node for a
// single retrieve, per spec §4.7: a down node is simply one of the
// tolerated N-K losses, never wrapped in a HandoffClient. Handoff only
// covers the write path, where the Archiver needs every segment placed
// somewhere; the Retriever already degrades to K-of-N. Returns an error
// under the same minimum-connected-count rule as ClientsFor.
func (c *Cluster) ReadersFor() ([]ClientHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	connected := 0
	for _, n := range c.nodes {
		if cl, ok := c.clients[n.Name]; ok && cl.Connected() {
			connected++
		}
	}
	if connected < c.k {
		return nil, fmt.Errorf("cluster: only %d of %d nodes connected, need at least %d", connected, len(c.nodes), c.k)
	}

	handles := make([]ClientHandle, 0, len(c.nodes))
	for _, n := range c.nodes {
		cl, ok := c.clients[n.Name]
		if !ok {
			continue
		}
		handles = append(handles, ClientHandle{Node: n, Client: cl})
	}
	return handles, nil
}

// ConnectNode dials a single named node, for operator-triggered recovery
// after a node has been repaired — ResilientClient does not redial on its
// own once it has observed a transport failure, so a disconnection is
// otherwise permanent until the process restarts or an operator calls this.
func (c *Cluster) ConnectNode(ctx context.Context, nodeName string) error {
	c.mu.RLock()
	cl, ok := c.clients[nodeName]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("cluster: %q is not a configured node", nodeName)
	}
	return cl.Connect(ctx)
}

// DisconnectNode closes a single named node's connection, for operator-
// triggered maintenance: the node is held down without touching the
// underlying process, and every subsequent request treats it exactly
// like an unplanned disconnect (handoff on writes, K-of-N tolerance on
// reads).
func (c *Cluster) DisconnectNode(nodeName string) error {
	c.mu.RLock()
	cl, ok := c.clients[nodeName]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("cluster: %q is not a configured node", nodeName)
	}
	cl.Disconnect()
	return nil
}

// ClientHandle pairs a node identity with the client (direct or handoff)
// a per-request component should use to reach it.
type ClientHandle struct {
	Node   Node
	Client nodeclient.Client
}

// sampleDistinct returns up to count names from pool, excluding exclude,
// chosen uniformly at random without replacement.
func sampleDistinct(pool []string, exclude string, count int) []string {
	candidates := make([]string, 0, len(pool))
	for _, p := range pool {
		if p != exclude {
			candidates = append(candidates, p)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if count > len(candidates) {
		count = len(candidates)
	}
	return candidates[:count]
}
