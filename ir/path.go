package ir

import (
	"strconv"
	"strings"
)

// JoinKey appends a mapping key to path: "a" + "b" -> "a.b". Keys that are empty
// or contain '.', '[', ']' or '"' are rendered quoted in brackets: a["x.y"].
func JoinKey(path, key string) string {
	if key == "" || strings.ContainsAny(key, ".[]\"") {
		return path + "[" + strconv.Quote(key) + "]"
	}
	if path == "" {
		return key
	}
	return path + "." + key
}

// JoinIndex appends a sequence index to path: "a" + 2 -> "a[2]".
func JoinIndex(path string, index int) string {
	return path + "[" + strconv.Itoa(index) + "]"
}

// DisplayPath renders the root path as "$" and any other path unchanged.
func DisplayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
