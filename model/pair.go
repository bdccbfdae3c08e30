package model

import "fmt"

type DestinationKind int

const (
	destinationInvalid DestinationKind = iota
	// ReplicaDestination is another dataset, possibly on another host.
	ReplicaDestination
	// BucketDestination is an object-store bucket prefix.
	BucketDestination
)

func (k DestinationKind) String() string {
	switch k {
	case ReplicaDestination:
		return "replica"
	case BucketDestination:
		return "bucket"
	default:
		return fmt.Sprintf("DestinationKind(%d)", int(k))
	}
}

// SyncPair binds a source dataset to one destination. Pairs are discovered
// fresh on every run from dataset marker properties; nothing about a pair
// is remembered in memory between runs.
type SyncPair struct {
	Source      DatasetName
	Kind        DestinationKind
	Destination string
}

func (pair *SyncPair) String() string {
	return fmt.Sprintf("%s → %s:%s", pair.Source, pair.Kind, pair.Destination)
}

// Validate rejects pairs that would sync a dataset onto itself.
func (pair *SyncPair) Validate() error {
	if pair.Destination == "" {
		return fmt.Errorf("pair for '%s' has no destination", pair.Source)
	}
	if pair.Kind == ReplicaDestination && pair.Destination == pair.Source.Path() {
		return fmt.Errorf("pair for '%s' points at itself", pair.Source)
	}
	return nil
}
