package domain

import (
	"sort"
	"strings"
)

// ResourceKind names a category of consumable capacity.
type ResourceKind string

const (
	KindImageCount      ResourceKind = "image_count"
	KindObjectStorageMB ResourceKind = "object_storage_mb"
	KindInstanceCount   ResourceKind = "instance_count"
)

// KindInfo describes how a resource kind is measured and managed.
type KindInfo struct {
	Kind ResourceKind
	Unit string
	// CommandNoun is the resource word used by the privileged quota tool,
	// e.g. "image" in "quota-image-get".
	CommandNoun string
	// DefaultLimit applies when neither a stored record nor a configured
	// default exists.
	DefaultLimit int64
}

var kinds = map[ResourceKind]KindInfo{
	KindImageCount: {
		Kind:         KindImageCount,
		Unit:         "images",
		CommandNoun:  "image",
		DefaultLimit: 10,
	},
	KindObjectStorageMB: {
		Kind:         KindObjectStorageMB,
		Unit:         "MB",
		CommandNoun:  "object-storage",
		DefaultLimit: 10240,
	},
	KindInstanceCount: {
		Kind:         KindInstanceCount,
		Unit:         "instances",
		CommandNoun:  "instance",
		DefaultLimit: 20,
	},
}

// ParseKind resolves a kind name, rejecting unknown kinds.
func ParseKind(value string) (ResourceKind, error) {
	kind := ResourceKind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := kinds[kind]; !ok {
		return "", ErrInvalidKind
	}
	return kind, nil
}

// Info returns the descriptor for k.
func (k ResourceKind) Info() (KindInfo, bool) {
	info, ok := kinds[k]
	return info, ok
}

// Unit returns the unit of measure, or an empty string for unknown kinds.
func (k ResourceKind) Unit() string {
	return kinds[k].Unit
}

func (k ResourceKind) String() string { return string(k) }

// Kinds lists every known resource kind in stable order.
func Kinds() []ResourceKind {
	out := make([]ResourceKind, 0, len(kinds))
	for kind := range kinds {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultLimits resolves the system default limit for a kind.
type DefaultLimits interface {
	DefaultLimit(kind ResourceKind) int64
}

// DefaultLimitMap is a static DefaultLimits. Kinds missing from the map
// fall back to the built-in default.
type DefaultLimitMap map[ResourceKind]int64

func (m DefaultLimitMap) DefaultLimit(kind ResourceKind) int64 {
	if v, ok := m[kind]; ok {
		return v
	}
	return kinds[kind].DefaultLimit
}
