// Copyright 2026 The JetStream Protocol Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stream implements per-stream sequencing, reordering, and the
// table of open streams for a connection.
package stream

import "github.com/google/btree"

type reorderItem struct {
	seq     uint64
	payload []byte
}

func lessReorderItem(a, b reorderItem) bool { return a.seq < b.seq }

// reorderBuffer holds out-of-order frames for a single stream, bounded
// to budget entries. When full, the entry with the lowest sequence is
// evicted to make room for the new one, whatever order the buffered
// entries arrived in.
type reorderBuffer struct {
	tree   *btree.BTreeG[reorderItem]
	budget int
}

func newReorderBuffer(budget int) *reorderBuffer {
	return &reorderBuffer{
		tree:   btree.NewG(32, lessReorderItem),
		budget: budget,
	}
}

func (b *reorderBuffer) insert(seq uint64, payload []byte) {
	if b.tree.Len() >= b.budget {
		if oldest, ok := b.tree.Min(); ok {
			b.tree.Delete(oldest)
		}
	}
	b.tree.ReplaceOrInsert(reorderItem{seq: seq, payload: payload})
}

func (b *reorderBuffer) has(seq uint64) bool {
	_, ok := b.tree.Get(reorderItem{seq: seq})
	return ok
}

// drain removes and returns, in order, every contiguous frame starting
// at next. It returns the updated next-expected sequence.
func (b *reorderBuffer) drain(next uint64) ([][]byte, uint64) {
	var out [][]byte
	for {
		item, ok := b.tree.Get(reorderItem{seq: next})
		if !ok {
			break
		}
		b.tree.Delete(item)
		out = append(out, item.payload)
		next++
	}
	return out, next
}

func (b *reorderBuffer) len() int { return b.tree.Len() }
