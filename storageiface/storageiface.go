// Package storageiface describes the two remote interfaces a storage
// server exposes: StorageOp to clients, for reading and writing file
// bytes, and CommandOp to the naming server, for create/delete/copy
// administration. The storage server's own implementation of these
// interfaces -- the local file I/O behind them -- is out of scope: this
// package only carries the contract, plus the RPC stub (client side)
// and skeleton (server side) glue needed so the naming server can call
// out to whatever process does implement them.
package storageiface

import "github.com/nicolagi/dfs/storageref"

// StorageOp is the interface a storage server exposes to clients for
// direct file I/O. Every operation may fail with a transport-level
// error in addition to its own logical errors, as required of any
// remote interface.
type StorageOp interface {
	// Size returns the size in bytes of the file at path. Fails with
	// NotFound if the path does not exist or names a directory.
	Size(path string) (int64, error)

	// Read returns length bytes starting at offset. Fails with
	// NotFound if the path does not exist or names a directory, and
	// with ArgumentInvalid if offset or length is negative, or the
	// range offset+length extends beyond the file's size.
	Read(path string, offset int64, length int) ([]byte, error)

	// Write writes data at offset, extending the file as needed. Fails
	// with NotFound if the path does not exist or names a directory,
	// and with ArgumentInvalid if offset is negative.
	Write(path string, offset int64, data []byte) (int, error)
}

// CommandOp is the interface a storage server exposes to the naming
// server for administrative operations.
type CommandOp interface {
	// Create creates an empty file at path. Returns false if the file
	// already exists or an intermediate directory could not be
	// created; it never creates the path's final directory component
	// as a directory itself.
	Create(path string) (bool, error)

	// Delete recursively removes path and prunes empty parent
	// directories up to, but not including, the storage server's
	// root.
	Delete(path string) error

	// Copy fetches path from the StorageOp exposed at source, in
	// bounded-size chunks, and writes it locally. source identifies a
	// StorageOp endpoint rather than carrying a live object, since a
	// remote interface value cannot itself cross the wire: the
	// receiving storage server dials source to read the chunks.
	Copy(path string, source storageref.Endpoint) error
}
