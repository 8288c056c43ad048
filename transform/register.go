package transform

func init() {
	Register(Codec{Name: "gzip", Extensions: []string{"gz", "gzip"}, Magic: []byte{0x1f, 0x8b}, New: Gzip})
	Register(Codec{Name: "zstd", Extensions: []string{"zst", "zstd"}, Magic: []byte{0x28, 0xb5, 0x2f, 0xfd}, New: Zstd})
	Register(Codec{Name: "xz", Extensions: []string{"xz"}, Magic: []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, New: XZ})
	Register(Codec{Name: "zip", Extensions: []string{"zip"}, Magic: []byte{'P', 'K', 0x03, 0x04}, New: func() Stage { return Zip(DefaultZipEntry) }})
}
