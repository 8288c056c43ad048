// Package transform wraps byte streams in compression and encryption stages.
//
// A Pipeline is an ordered list of stages applied on write from first to last
// and undone on read from last to first:
//
//	p, err := transform.NewPipeline(transform.Gzip(), enc)
//	w, err := p.Writer(dst) // data -> gzip -> encrypt -> dst
//	r, err := p.Reader(src) // src -> decrypt -> gunzip -> data
//
// Compression stages produce standard containers (gzip, zstd, xz, zip) that
// ordinary tools can open. The encryption stage writes a self-describing
// chunked AEAD stream: the header names the cipher, the key-derivation
// function and its parameters, so the original secret is all a reader needs.
// Each chunk is authenticated together with the header and its position, which
// detects truncation, reordering and a wrong key.
//
// Compression codecs register by name, extension and magic bytes; Sniff uses
// that table to recognise a compressed or encrypted stream from its first
// bytes.
package transform
