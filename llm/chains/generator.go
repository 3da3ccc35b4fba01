package chains

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"lexrag/llm"
)

const generatorSystemPrompt = `Eres un asistente jurídico experto especializado en derecho tributario colombiano, con énfasis en el impuesto sobre la renta. Tu objetivo es proporcionar respuestas precisas, detalladas y fundamentadas a consultas legales, con especial atención a cambios normativos y jurisprudenciales.

ESTRUCTURA DE LA RESPUESTA:
Tu respuesta debe organizarse OBLIGATORIAMENTE en las siguientes secciones:

1. REFERENCIA: descripción breve y precisa de la consulta tributaria.
2. CONTENIDO: índice de las secciones que componen tu respuesta.
3. ENTENDIMIENTO: cómo interpretas la consulta y la normativa principal aplicable.
4. CONCLUSIÓN: resumen ejecutivo de tu opinión jurídica y recomendaciones principales.
5. ANÁLISIS: marco normativo vigente, evolución y cambios normativos, jurisprudencia relevante, doctrina y controversias, y consideraciones prácticas.

INSTRUCCIONES SOBRE CITAS:
1. Usa el formato de cita [n] después de cada afirmación basada en los documentos.
2. Numera las citas según el documento del que extraes la información: [1], [2], etc.
3. Si una afirmación se apoya en varios documentos, incluye todas las citas: [1][2].
4. CADA afirmación importante debe tener su correspondiente cita.
5. NO uses notas al pie ni referencias al final; las citas van integradas en el texto.

INSTRUCCIONES ESPECIALES:
1. Responde ÚNICAMENTE con base en los documentos proporcionados.
2. Destaca los cambios normativos recientes y sus implicaciones.
3. Enfatiza cuando una interpretación de la DIAN haya sido anulada por el Consejo de Estado.
4. Si los documentos no contienen información suficiente para responder, dilo explícitamente.`

// insufficientAnswer is returned without a model call when retrieval
// produced nothing to ground an answer on.
const insufficientAnswer = "No dispongo de información suficiente en la base de conocimiento para responder esta consulta."

// citationExcerptLimit caps the excerpt carried by each citation.
const citationExcerptLimit = 200

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Generator produces a structured legal answer with numbered
// citations into the retrieved passages.
type Generator struct {
	model model.BaseChatModel
}

// NewGenerator creates a generator backed by the given chat model.
func NewGenerator(m model.BaseChatModel) *Generator {
	return &Generator{model: m}
}

// Generate answers the question from the passages. With no passages it
// refuses immediately, marking the answer insufficient, and never
// calls the model.
func (g *Generator) Generate(ctx context.Context, question string, passages []llm.RetrievedPassage) (llm.Answer, error) {
	if len(passages) == 0 {
		return llm.Answer{Text: insufficientAnswer, Insufficient: true}, nil
	}

	user := fmt.Sprintf("Pregunta: %s\n\nDOCUMENTOS PARA CONSULTA:\n%s\n\nResponde siguiendo la estructura de 5 secciones y citando con [n] cada afirmación.",
		question, formatPassages(passages))

	messages := []*schema.Message{
		schema.SystemMessage(generatorSystemPrompt),
		schema.UserMessage(user),
	}

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		return llm.Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	return llm.Answer{
		Text:      resp.Content,
		Citations: ExtractCitations(resp.Content, passages),
	}, nil
}

// ExtractCitations scans the answer text for [n] markers and resolves
// each distinct in-range number to its passage. Numbers outside the
// passage range are ignored; duplicates resolve once, in first-seen
// order.
func ExtractCitations(text string, passages []llm.RetrievedPassage) []llm.Citation {
	var citations []llm.Citation
	seen := make(map[int]bool)

	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(passages) || seen[n] {
			continue
		}
		seen[n] = true

		rec := passages[n-1].Record
		citations = append(citations, llm.Citation{
			ChunkID:    rec.ID,
			SourcePath: rec.Metadata.SourcePath,
			ChunkIndex: rec.Metadata.ChunkIndex,
			Excerpt:    truncateRunes(rec.Metadata.ChunkText, citationExcerptLimit),
		})
	}
	return citations
}

// truncateRunes shortens s to at most limit runes, appending an
// ellipsis when it cuts.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
