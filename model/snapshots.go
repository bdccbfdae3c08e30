package model

import (
	"fmt"
	"iter"
)

// Snapshots is an ordered set of snapshots, sorted by creation time.
// Snapshots with equal creation times keep catalog (insertion) order,
// matching `zfs list -s creation`.
type Snapshots struct {
	nodes map[string]*node
	head  *node
	tail  *node
}

type node struct {
	prev *node
	next *node
	val  *Snapshot
}

func NewSnapshots(snapshots ...*Snapshot) *Snapshots {
	snaps := &Snapshots{
		nodes: make(map[string]*node),
	}
	for _, snap := range snapshots {
		snaps.Add(snap)
	}
	return snaps
}

func (snaps *Snapshots) String() string {
	if snaps == nil {
		return "<no snaps>"
	}
	if snaps.tail == nil || snaps.tail.val == nil {
		return fmt.Sprintf("%d snaps", snaps.Len())
	}
	return fmt.Sprintf("%d → %s", snaps.Len(), snaps.tail.val.Name)
}

func (snaps *Snapshots) All() iter.Seq[*Snapshot] {
	return func(yield func(*Snapshot) bool) {
		if snaps == nil {
			return
		}
		node := snaps.head
		for node != nil {
			if !yield(node.val) {
				return
			}
			node = node.next
		}
	}
}

func (snaps *Snapshots) Add(snap *Snapshot) {
	// already added
	if _, has := snaps.nodes[snap.ID()]; has {
		return
	}

	newNode := &node{
		val: snap,
	}

	// new head and tail (was empty)
	if snaps.head == nil {
		snaps.head = newNode
		snaps.tail = newNode
		snaps.nodes[snap.ID()] = newNode
		return
	}

	// new head
	if snap.Less(snaps.head.val) {
		newNode.next = snaps.head
		snaps.head.prev = newNode
		snaps.head = newNode
		snaps.nodes[snap.ID()] = newNode
		return
	}

	// new tail; >= keeps equal timestamps in catalog order
	if !snap.Less(snaps.tail.val) {
		newNode.prev = snaps.tail
		snaps.tail.next = newNode
		snaps.tail = newNode
		snaps.nodes[snap.ID()] = newNode
		return
	}

	// iter to find insertion
	var prev, current = snaps.head, snaps.head.next
	for current != nil && !snap.Less(current.val) {
		prev, current = current, current.next
	}
	if current == nil {
		panic("oops")
	}

	newNode.next = current
	newNode.prev = prev
	prev.next = newNode
	current.prev = newNode
	snaps.nodes[snap.ID()] = newNode
}

func (snaps *Snapshots) Del(snap *Snapshot) {
	id := snap.ID()

	node, hasNode := snaps.nodes[id]
	if !hasNode {
		return
	}

	if node == snaps.head {
		snaps.head = node.next
	}
	if node == snaps.tail {
		snaps.tail = node.prev
	}

	if node.prev != nil {
		node.prev.next = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	}

	delete(snaps.nodes, id)
	node.prev = nil
	node.next = nil
	node.val = nil
}

func (snaps *Snapshots) Has(snap *Snapshot) bool {
	if snaps == nil {
		return false
	}
	_, exists := snaps.nodes[snap.ID()]
	return exists
}

// Find returns the snapshot with the given name, or nil. Names match by
// exact string equality only.
func (snaps *Snapshots) Find(name string) *Snapshot {
	if snaps == nil {
		return nil
	}
	for snap := range snaps.All() {
		if snap.Name == name {
			return snap
		}
	}
	return nil
}

func (snaps *Snapshots) Len() int {
	if snaps == nil {
		return 0
	}
	return len(snaps.nodes)
}

// Oldest returns the oldest Snapshot.
// It returns nil if there are no snapshots.
func (snaps *Snapshots) Oldest() *Snapshot {
	if snaps == nil || snaps.head == nil {
		return nil
	}
	return snaps.head.val
}

// Newest returns the newest Snapshot.
// It returns nil if there are no snapshots.
func (snaps *Snapshots) Newest() *Snapshot {
	if snaps == nil || snaps.tail == nil {
		return nil
	}
	return snaps.tail.val
}
