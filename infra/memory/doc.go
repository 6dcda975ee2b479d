// Package memory holds typed object pools for buffers that are reused on
// hot write paths, such as journal frames.
package memory
