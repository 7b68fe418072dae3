// Package headers encodes the storage service request headers that sit
// next to request signing: role tags and durability level.
package headers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/net/http/httpguts"
)

const (
	// RoleTagHeader carries the roles an object or directory is tagged with.
	RoleTagHeader = "Role-Tag"

	// DurabilityLevelHeader sets how many copies of an object are stored.
	DurabilityLevelHeader = "Durability-Level"
)

// Durability level bounds accepted by the storage service.
const (
	MinDurabilityLevel = 1
	MaxDurabilityLevel = 6
)

var (
	// ErrInvalidRole is returned when a role tag cannot be carried in a
	// comma-separated header value.
	ErrInvalidRole = errors.New("headers: invalid role tag")

	// ErrInvalidDurability is returned for a durability level outside
	// MinDurabilityLevel..MaxDurabilityLevel or a non-numeric header.
	ErrInvalidDurability = errors.New("headers: invalid durability level")
)

// SetRoles writes roles as a sorted, comma-separated Role-Tag value. An
// empty or nil set removes the header. Surrounding whitespace is trimmed
// from each tag; tags that are empty, contain a comma, or contain bytes not
// allowed in a header value return ErrInvalidRole and leave h unchanged.
func SetRoles(h http.Header, roles mapset.Set[string]) error {
	if roles == nil || roles.Cardinality() == 0 {
		h.Del(RoleTagHeader)
		return nil
	}

	clean := mapset.NewThreadUnsafeSetWithSize[string](roles.Cardinality())

	for _, role := range roles.ToSlice() {
		tag := strings.TrimSpace(role)

		if tag == "" || strings.Contains(tag, ",") || !httpguts.ValidHeaderFieldValue(tag) {
			return fmt.Errorf("%w: %q", ErrInvalidRole, role)
		}

		clean.Add(tag)
	}

	h.Set(RoleTagHeader, strings.Join(mapset.Sorted(clean), ","))

	return nil
}

// Roles reads the Role-Tag header into a set. Values are split on commas
// and trimmed; empty entries and duplicates are dropped. Multiple Role-Tag
// fields are merged. A missing header yields an empty set.
func Roles(h http.Header) mapset.Set[string] {
	roles := mapset.NewSet[string]()

	for _, value := range h.Values(RoleTagHeader) {
		for tag := range strings.SplitSeq(value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				roles.Add(tag)
			}
		}
	}

	return roles
}

// SetDurabilityLevel sets the number of object copies the storage service
// keeps.
func SetDurabilityLevel(h http.Header, level int) error {
	if level < MinDurabilityLevel || level > MaxDurabilityLevel {
		return fmt.Errorf("%w: %d", ErrInvalidDurability, level)
	}

	h.Set(DurabilityLevelHeader, strconv.Itoa(level))

	return nil
}

// DurabilityLevel returns the Durability-Level header. ok is false when the
// header is absent.
func DurabilityLevel(h http.Header) (level int, ok bool, err error) {
	raw := strings.TrimSpace(h.Get(DurabilityLevelHeader))
	if raw == "" {
		return 0, false, nil
	}

	level, err = strconv.Atoi(raw)
	if err != nil || level < MinDurabilityLevel || level > MaxDurabilityLevel {
		return 0, true, fmt.Errorf("%w: %q", ErrInvalidDurability, raw)
	}

	return level, true, nil
}
