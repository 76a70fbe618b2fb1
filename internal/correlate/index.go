// Package correlate joins ranked search hits with the citations of a
// generated answer so either side can be resolved from the other.
package correlate

import "github.com/matheus3301/tgrag/internal/backend"

// Key identifies a message across both collections.
type Key struct {
	MessageID int64
	ChatID    int64
}

// Anchor is the renderable target of a citation.
type Anchor struct {
	CID      string
	HitIndex int
	Key      Key
	Link     string
}

// Index is the correlation of one hits/citations pair. A hit has at most one
// cid and a cid maps to exactly one hit. The zero value and a nil *Index are
// empty.
type Index struct {
	byCID map[string]Anchor
	byHit map[int]string
	order []string
}

// Build correlates hits with citations. Citations whose message is not among
// the hits, repeated cids, and second citations of an already-cited hit are
// dropped; the first one wins. citations may be nil.
func Build(hits []backend.Hit, citations []backend.Citation) *Index {
	idx := &Index{
		byCID: make(map[string]Anchor, len(citations)),
		byHit: make(map[int]string, len(citations)),
	}
	if len(citations) == 0 {
		return idx
	}

	positions := make(map[Key]int, len(hits))
	for i, h := range hits {
		k := KeyOf(h)
		if _, seen := positions[k]; !seen {
			positions[k] = i
		}
	}

	for _, c := range citations {
		if c.CID == "" {
			continue
		}
		if _, dup := idx.byCID[c.CID]; dup {
			continue
		}
		k := Key{MessageID: c.MessageID, ChatID: c.ChatID}
		pos, ok := positions[k]
		if !ok {
			continue
		}
		if _, cited := idx.byHit[pos]; cited {
			continue
		}
		link := c.TgLink
		if link == "" {
			link = hits[pos].Message.Link()
		}
		idx.byCID[c.CID] = Anchor{CID: c.CID, HitIndex: pos, Key: k, Link: link}
		idx.byHit[pos] = c.CID
		idx.order = append(idx.order, c.CID)
	}
	return idx
}

// KeyOf returns the correlation key of a hit.
func KeyOf(h backend.Hit) Key {
	return Key{MessageID: h.Message.ID, ChatID: h.Message.ChatID}
}

// Resolve returns the anchor of cid.
func (x *Index) Resolve(cid string) (Anchor, bool) {
	if x == nil {
		return Anchor{}, false
	}
	a, ok := x.byCID[cid]
	return a, ok
}

// CIDForHit returns the cid attached to the hit at position i.
func (x *Index) CIDForHit(i int) (string, bool) {
	if x == nil {
		return "", false
	}
	cid, ok := x.byHit[i]
	return cid, ok
}

// CIDs lists resolved cids in citation order.
func (x *Index) CIDs() []string {
	if x == nil {
		return nil
	}
	return append([]string(nil), x.order...)
}

// Len is the number of resolved citations.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.order)
}
