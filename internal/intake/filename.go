// filename.go - Attachment allow-list and filename sanitization
package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// allowedExtensions lists the attachment types accepted by the form.
var allowedExtensions = map[string]bool{
	"txt":  true,
	"pdf":  true,
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"doc":  true,
	"docx": true,
}

// maxFilenameLen keeps stored names within common filesystem limits.
const maxFilenameLen = 255

// fallbackHashLen is the number of hex digits naming a file whose stem was
// lost to sanitization.
const fallbackHashLen = 12

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// windowsDeviceNames are reserved on Windows regardless of extension.
var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// AllowedExtensions returns the accepted extensions, sorted.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// AllowedFile reports whether name has an allow-listed extension. Only the
// text after the final dot counts, compared case-insensitively.
func AllowedFile(name string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	return allowedExtensions[strings.ToLower(name[idx+1:])]
}

// SecureFilename reduces a client supplied name to a flat ASCII name safe to
// use as a file or object key:
//
//	"My cool movie.mov"            -> "My_cool_movie.mov"
//	"../../../etc/passwd"          -> "etc_passwd"
//	"i contain cool ümläuts.txt"   -> "i_contain_cool_umlauts.txt"
//	"日本語.pdf"                    -> "file_<hash>.pdf"
//
// When nothing of the stem survives, the name becomes "file_" plus a short
// hash of the client name, keeping the extension, so distinct non-ASCII names
// stay distinct. Results are at most 255 bytes.
func SecureFilename(name string) string {
	return secureFilename(name, maxFilenameLen)
}

// secureFilename is SecureFilename with the length capped at limit.
func secureFilename(name string, limit int) string {
	folded := foldASCII(name)

	// Extension of the last path component, reduced to safe characters.
	last := folded[strings.LastIndexAny(folded, `/\`)+1:]
	ext := unsafeFilenameChars.ReplaceAllString(filepath.Ext(last), "")
	if ext == "." {
		ext = ""
	}

	clean := strings.NewReplacer("/", " ", `\`, " ").Replace(folded)
	clean = strings.Join(strings.Fields(clean), "_")
	clean = unsafeFilenameChars.ReplaceAllString(clean, "")
	clean = strings.Trim(clean, "._")

	if clean == "" || (ext != "" && clean == ext[1:]) {
		clean = fallbackFilename(name, ext)
	}

	base := strings.ToUpper(strings.SplitN(clean, ".", 2)[0])
	if windowsDeviceNames[base] {
		clean = "_" + clean
	}

	if len(clean) > limit {
		keep := filepath.Ext(clean)
		if len(keep) >= limit {
			keep = ""
		}
		clean = clean[:limit-len(keep)] + keep
	}
	return clean
}

// foldASCII decomposes name and drops every non-ASCII rune, so accented
// letters keep their base letter.
func foldASCII(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fallbackFilename(clientName, ext string) string {
	sum := sha256.Sum256([]byte(clientName))
	return "file_" + hex.EncodeToString(sum[:])[:fallbackHashLen] + ext
}
