// Package orderbook holds the depth-limited price-level book of the
// market maker. Each side is a red-black tree keyed by decimal price,
// trimmed to the best N levels after every mutation.
//
// The book is single-writer: only the matching engine mutates it.
// Everyone else reads it through View.
package orderbook
