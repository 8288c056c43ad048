package transform

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownCodec is returned by Lookup for unregistered names.
var ErrUnknownCodec = errors.New("transform: unknown codec")

// EncryptedName is what Sniff reports for encrypted streams.
const EncryptedName = "encrypted"

// Codec describes a registered compression stage.
type Codec struct {
	Name       string
	Extensions []string
	// Magic is the fixed prefix of every stream the stage writes.
	Magic []byte
	New   func() Stage
}

var (
	codecsMu   sync.RWMutex
	codecs     = make(map[string]Codec)
	extensions = make(map[string]string)
)

// Register adds a compression codec. It panics if the name or an extension is
// taken, and is meant to be called from init functions.
func Register(c Codec) {
	if c.Name == "" || c.New == nil {
		panic("transform: Register needs a name and a constructor")
	}
	name := strings.ToLower(c.Name)
	codecsMu.Lock()
	defer codecsMu.Unlock()
	if _, dup := codecs[name]; dup {
		panic("transform: Register called twice for codec " + name)
	}
	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		if owner, dup := extensions[ext]; dup {
			panic(fmt.Sprintf("transform: extension %q already registered by %s", ext, owner))
		}
		extensions[ext] = name
	}
	codecs[name] = c
}

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, error) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return Codec{}, fmt.Errorf("%w %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// ByExtension returns the codec for a file extension such as ".gz".
func ByExtension(ext string) (Codec, bool) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	name, ok := extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return Codec{}, false
	}
	return codecs[name], true
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SniffLen is how many leading bytes Sniff needs at most.
const SniffLen = 8

// Sniff names the codec whose magic prefix matches, or EncryptedName for an
// encrypted stream.
func Sniff(prefix []byte) (string, bool) {
	if bytes.HasPrefix(prefix, []byte(EncryptedMagic)) {
		return EncryptedName, true
	}
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	best, bestLen := "", 0
	for name, c := range codecs {
		if len(c.Magic) > bestLen && bytes.HasPrefix(prefix, c.Magic) {
			best, bestLen = name, len(c.Magic)
		}
	}
	return best, bestLen > 0
}

// Peek returns up to SniffLen leading bytes of r and a reader that still
// yields the whole stream.
func Peek(r io.Reader) ([]byte, io.Reader, error) {
	br := bufio.NewReaderSize(r, 4096)
	prefix, err := br.Peek(SniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, br, err
	}
	return bytes.Clone(prefix), br, nil
}
