package chainclient

import "chainidx/chaincfg/chainhash"

// NullClient satisfies Client with no events and empty queries. It exists
// for tests that exercise IndexDB in isolation from any real producer.
type NullClient struct {
	events chan Event
}

// NewNullClient returns a ready-to-use NullClient.
func NewNullClient() *NullClient {
	return &NullClient{events: make(chan Event)}
}

func (c *NullClient) Events() <-chan Event { return c.events }

func (c *NullClient) GetEntry(chainhash.Hash) (Entry, bool)            { return nil, false }
func (c *NullClient) GetEntryByHeight(uint32) (Entry, bool)            { return nil, false }
func (c *NullClient) GetBlock(chainhash.Hash) (Block, error)           { return nil, errNullClient }
func (c *NullClient) GetNext(Entry) (Entry, bool)                      { return nil, false }
func (c *NullClient) GetHashes(uint32, uint32) ([]chainhash.Hash, error) {
	return nil, nil
}
func (c *NullClient) GetTip() (Entry, error) { return nil, errNullClient }

func (c *NullClient) Start() error { return nil }

func (c *NullClient) Stop() {
	close(c.events)
}

var errNullClient = errNullClientErr("chainclient: null client has no chain")

type errNullClientErr string

func (e errNullClientErr) Error() string { return string(e) }
