package model

import (
	"fmt"
	"strings"
)

type DatasetName string

func (dn DatasetName) String() string {
	switch dn {
	case "":
		return "<root>"
	default:
		return string(dn)
	}
}

func (dn DatasetName) Path() string {
	return string(dn)
}

// FlatPath renders the dataset path with "/" replaced by "_", so the whole
// dataset maps onto a single object-store key component.
func (dn DatasetName) FlatPath() string {
	return strings.ReplaceAll(strings.Trim(string(dn), "/"), "/", "_")
}

// Parent returns the enclosing dataset, or "" for a top-level dataset.
func (dn DatasetName) Parent() DatasetName {
	idx := strings.LastIndex(string(dn), "/")
	if idx < 0 {
		return ""
	}
	return dn[:idx]
}

type Snapshot struct {
	Dataset   DatasetName
	Name      string
	CreatedAt int64
}

func (snap *Snapshot) ID() string {
	return fmt.Sprintf("%s-%s", snap.Dataset, snap.Name)
}

func (snap *Snapshot) Less(other *Snapshot) bool {
	return snap.CreatedAt < other.CreatedAt
}

func (snap *Snapshot) String() string {
	return snap.Dataset.Path() + "@" + snap.Name
}
