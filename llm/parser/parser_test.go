package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySelectsParserByExtension(t *testing.T) {
	reg := DefaultRegistry()

	cases := map[string]FileType{
		"estatuto.txt":     FileTypeTXT,
		"concepto.md":      FileTypeMD,
		"CONCEPTO.MD":      FileTypeMD,
		"resolucion.html":  FileTypeHTML,
		"resolucion.htm":   FileTypeHTML,
		"guia.markdown":    FileTypeMD,
		"dir/escaneo.jpeg": FileTypeUnknown,
	}

	for path, want := range cases {
		p, ok := reg.GetParserForPath(path)
		if want == FileTypeUnknown {
			assert.False(t, ok, "unexpected parser for %s", path)
			assert.False(t, reg.Supports(path))
			continue
		}
		require.True(t, ok, "no parser for %s", path)
		assert.Equal(t, want, p.FileType())
		assert.True(t, reg.Supports(path))
	}
}

func TestTxtParserReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renta.txt")
	content := "Tarifas del impuesto de renta\n\nLa tarifa general es del 35%."
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	doc, err := NewTxtParser().ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, content, doc.Content)
	assert.Equal(t, "Tarifas del impuesto de renta", doc.Title)
}

func TestMarkdownParserStripsFrontmatter(t *testing.T) {
	content := "---\ntitle: Concepto DIAN 915\nyear: 2023\n---\n# Retención en la fuente\n\nTexto del concepto."

	doc, err := NewMarkdownParser().Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "Concepto DIAN 915", doc.Title)
	assert.Equal(t, "2023", doc.Metadata["year"])
	assert.NotContains(t, doc.Content, "---")
	assert.Contains(t, doc.Content, "Retención en la fuente")
}

func TestMarkdownParserWithoutFrontmatter(t *testing.T) {
	content := "# Sanciones tributarias\n\nTexto."

	doc, err := NewMarkdownParser().Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, "Sanciones tributarias", doc.Title)
	assert.Equal(t, content, doc.Content)
}

func TestHTMLParserExtractsContent(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Resolución 000042</title><style>body { color: red; }</style></head>
<body>
<nav><a href="/">Inicio</a></nav>
<main>
<h1>Resolución 000042 de 2024</h1>
<p>Por la cual se fija el calendario tributario.</p>
<ul><li>Grandes contribuyentes</li><li>Personas naturales</li></ul>
</main>
<script>alert("hola")</script>
<footer>DIAN 2024</footer>
</body>
</html>`

	doc, err := NewHTMLParser().Parse(context.Background(), strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "Resolución 000042", doc.Title)
	assert.Contains(t, doc.Content, "calendario tributario")
	assert.Contains(t, doc.Content, "Grandes contribuyentes")
	assert.NotContains(t, doc.Content, "alert")
	assert.NotContains(t, doc.Content, "color: red")
	assert.NotContains(t, doc.Content, "Inicio")
	assert.NotContains(t, doc.Content, "DIAN 2024")
}

func TestHTMLParserTitleFallsBackToHeading(t *testing.T) {
	html := `<html><body><h1>Beneficios tributarios</h1><p>Texto.</p></body></html>`

	doc, err := NewHTMLParser().Parse(context.Background(), strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, "Beneficios tributarios", doc.Title)
}

func TestRegistryParseFileUnknownExtension(t *testing.T) {
	_, err := DefaultRegistry().ParseFile(context.Background(), "escaneo.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parser found")
}
