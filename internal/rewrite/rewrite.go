// Package rewrite applies the source rewrites add-on scripts rely on before
// they are bundled: self-identifying register calls and named lazy chunks.
package rewrite

import (
	"bytes"
	"fmt"
	"regexp"
)

// ChunkNameComment is the magic comment key used to tag dynamic imports.
const ChunkNameComment = "webpackChunkName"

var (
	registerCall   = regexp.MustCompile(`(?i)\.register\(\s*\)\s*;`)
	dynamicImport  = regexp.MustCompile(`import\(\s*(?:'\./([^'\n]+)\.(\w+)'|"\./([^"\n]+)\.(\w+)")\s*\)`)
	relativeImport = regexp.MustCompile(`import\(\s*['"]\.\.?/`)
)

// Import is a relative dynamic import of the form import('./file.ext').
type Import struct {
	// File is the slash separated path without extension, relative to the importing file
	File string
	Ext  string

	quote byte
	start int
	end   int
}

// Specifier returns the import specifier as written in source.
func (i Import) Specifier() string {
	return "./" + i.File + "." + i.Ext
}

// ChunkName is the name a lazily loaded file is emitted under.
func ChunkName(id, ext string) string {
	return id + "/" + ext
}

// RegisterCall rewrites every zero-argument register call to pass the add-on
// id, returning the new source and the number of calls rewritten.
func RegisterCall(src []byte, id string) ([]byte, int) {
	count := 0
	out := registerCall.ReplaceAllFunc(src, func([]byte) []byte {
		count++
		return fmt.Appendf(nil, ".register('%s');", id)
	})
	return out, count
}

// FindDynamicImports returns the relative dynamic imports in src that fit the
// import('./file.ext') shape.
func FindDynamicImports(src []byte) []Import {
	var imports []Import

	for _, m := range dynamicImport.FindAllSubmatchIndex(src, -1) {
		imp := Import{start: m[0], end: m[1]}
		if m[2] >= 0 {
			imp.File, imp.Ext, imp.quote = string(src[m[2]:m[3]]), string(src[m[4]:m[5]]), '\''
		} else {
			imp.File, imp.Ext, imp.quote = string(src[m[6]:m[7]]), string(src[m[8]:m[9]]), '"'
		}
		imports = append(imports, imp)
	}

	return imports
}

// DynamicImports tags every import('./file.ext') with a chunk name derived
// from the add-on id and the file extension. It returns the new source, the
// number of imports tagged and the number of relative dynamic imports that
// did not fit the expected shape.
func DynamicImports(src []byte, id string) ([]byte, int, int) {
	imports := FindDynamicImports(src)
	unmatched := len(relativeImport.FindAllIndex(src, -1)) - len(imports)

	if len(imports) == 0 {
		return src, 0, unmatched
	}

	var (
		buf  bytes.Buffer
		last int
	)
	for _, imp := range imports {
		buf.Write(src[last:imp.start])
		fmt.Fprintf(&buf, `import(/* %s: "%s" */ %c%s%c)`,
			ChunkNameComment, ChunkName(id, imp.Ext), imp.quote, imp.Specifier(), imp.quote)
		last = imp.end
	}
	buf.Write(src[last:])

	return buf.Bytes(), len(imports), unmatched
}
