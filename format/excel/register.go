package excel

import "github.com/gobeaver/convkit/format"

func init() {
	format.Register(format.Adapter{
		Name:       name,
		NewReader:  func() format.Reader { return NewReader() },
		NewWriter:  func() format.Writer { return NewWriter() },
		Extensions: []string{"xlsx"},
		Aliases:    []string{"xlsx"},
		Tabular:    true,
		Magic:      []byte("PK\x03\x04"),
	})
}
