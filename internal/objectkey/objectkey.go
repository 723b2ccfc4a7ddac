// Package objectkey extracts signer identity from uploaded contract object keys.
//
// Keys follow <prefix>/<name-with-dashes>-<email>.pdf, for example
// contratos-gerados/joao-silva-joao@email.com.pdf.
package objectkey

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9]+(-[A-Za-z0-9]+)*$`)
	emailPattern = regexp.MustCompile(`^[a-z0-9._%+]+@[a-z0-9-]+(\.[a-z0-9-]+)*\.[a-z]{2,}$`)
)

// Parse returns the signer encoded in key. prefix is the folder the key must
// live directly under; an empty prefix accepts a bare file name.
// Every failure wraps failure.ErrMalformedKey.
func Parse(key, prefix string) (types.Signer, error) {
	file := key
	if p := strings.Trim(prefix, "/"); p != "" {
		rest, ok := strings.CutPrefix(key, p+"/")
		if !ok {
			return types.Signer{}, malformed(key, "expected prefix %q", p+"/")
		}
		file = rest
	}
	if file == "" || strings.Contains(file, "/") {
		return types.Signer{}, malformed(key, "expected a file directly under the prefix")
	}

	ext := path.Ext(file)
	if !strings.EqualFold(ext, ".pdf") {
		return types.Signer{}, malformed(key, "extension %q is not .pdf", ext)
	}
	base := strings.TrimSuffix(file, ext)

	switch n := strings.Count(base, "@"); {
	case n == 0:
		return types.Signer{}, malformed(key, "no @ in file name")
	case n > 1:
		return types.Signer{}, malformed(key, "%d @ characters in file name", n)
	}

	at := strings.IndexByte(base, '@')
	dash := strings.LastIndexByte(base[:at], '-')
	if dash <= 0 {
		return types.Signer{}, malformed(key, "no name before the email")
	}
	rawName, rawEmail := base[:dash], base[dash+1:]

	if !namePattern.MatchString(rawName) {
		return types.Signer{}, malformed(key, "name %q has unsupported characters", rawName)
	}
	email := strings.ToLower(rawEmail)
	if !emailPattern.MatchString(email) {
		return types.Signer{}, malformed(key, "invalid email %q", rawEmail)
	}

	return types.Signer{Name: titleName(rawName), Email: email}, nil
}

// Build returns the canonical object key for a signer.
func Build(prefix, name, email string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(name), "-"))
	file := slug + "-" + strings.ToLower(email) + ".pdf"
	if p := strings.Trim(prefix, "/"); p != "" {
		return p + "/" + file
	}
	return file
}

// Unescape decodes an S3 event notification key, which arrives
// form-encoded ("+" for spaces, "%40" for "@").
func Unescape(key string) (string, error) {
	k, err := url.QueryUnescape(key)
	if err != nil {
		return "", malformed(key, "undecodable key: %v", err)
	}
	return k, nil
}

func titleName(dashed string) string {
	parts := strings.Split(dashed, "-")
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + strings.ToLower(p[size:])
	}
	return strings.Join(parts, " ")
}

func malformed(key, format string, args ...any) error {
	return fmt.Errorf("%w: %q: %s", failure.ErrMalformedKey, key, fmt.Sprintf(format, args...))
}
