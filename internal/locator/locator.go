// Package locator maps remote locators (URLs) to the content hash of the bytes
// last fetched from them, so repeat requests can skip the network.
package locator

import "errors"

var ErrNotInIndex = errors.New("locator not in index")

// Index defines the locator to content hash mapping. Several locators may
// map to the same hash.
type Index interface {
	Get(locator string) (string, error)
	Put(locator string, hash string) error
	Len() int
}
