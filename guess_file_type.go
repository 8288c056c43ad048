package convkit

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/transform"
)

// EncryptedExt marks encrypted files, e.g. "orders.csv.gz.enc".
const EncryptedExt = "enc"

// FileType is what a file name says about its content.
type FileType struct {
	// Format is the canonical format name.
	Format string

	// Compression is the codec name, empty for none.
	Compression string

	Encrypted bool
}

// GuessFileType reads a file name from the outside in: an optional ".enc",
// then an optional codec extension, then the format extension.
//
//	GuessFileType("data.csv.gz")   // {csv gzip false}
//	GuessFileType("dump.json.enc") // {json  true}
func GuessFileType(name string) (FileType, error) {
	var ft FileType
	rest := path.Base(name)

	ext := extOf(rest)
	if strings.EqualFold(ext, EncryptedExt) {
		ft.Encrypted = true
		rest = strings.TrimSuffix(rest, "."+ext)
		ext = extOf(rest)
	}
	if codec, ok := transform.ByExtension(ext); ok {
		// "data.zip" alone names a zipped file with no format.
		if inner := extOf(strings.TrimSuffix(rest, "."+ext)); inner != "" {
			ft.Compression = codec.Name
			rest = strings.TrimSuffix(rest, "."+ext)
			ext = inner
		}
	}
	a, ok := format.ByExtension(ext)
	if !ok {
		return FileType{}, fmt.Errorf("%w: cannot tell the format of %q", format.ErrUnknownFormat, name)
	}
	ft.Format = a.Name
	return ft, nil
}

// Name returns base with its recognised extensions replaced by the ones ft
// implies, e.g. ("data.csv.gz", {json "" false}) gives "data.json".
func (ft FileType) Name(base string) (string, error) {
	a, err := format.Lookup(ft.Format)
	if err != nil {
		return "", err
	}
	name := StripExtensions(base)
	if len(a.Extensions) > 0 {
		name += "." + a.Extensions[0]
	}
	if ft.Compression != "" {
		codec, err := transform.Lookup(ft.Compression)
		if err != nil {
			return "", err
		}
		if len(codec.Extensions) > 0 {
			name += "." + codec.Extensions[0]
		}
	}
	if ft.Encrypted {
		name += "." + EncryptedExt
	}
	return name, nil
}

// StripExtensions removes the encryption, codec and format extensions from
// the end of name.
func StripExtensions(name string) string {
	ext := extOf(name)
	if strings.EqualFold(ext, EncryptedExt) {
		name = strings.TrimSuffix(name, "."+ext)
		ext = extOf(name)
	}
	if _, ok := transform.ByExtension(ext); ok {
		name = strings.TrimSuffix(name, "."+ext)
		ext = extOf(name)
	}
	if _, ok := format.ByExtension(ext); ok {
		name = strings.TrimSuffix(name, "."+ext)
	}
	return name
}

func extOf(name string) string {
	return strings.TrimPrefix(path.Ext(name), ".")
}
