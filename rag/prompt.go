package rag

import (
	"fmt"
	"strings"

	"github.com/construdocs/construdocs/document"
)

// NoRelevantInfoAnswer is returned without calling the model when retrieval
// finds nothing worth answering from.
const NoRelevantInfoAnswer = "❌ No encuentro información relevante sobre este tema en la documentación técnica disponible. Los documentos que tengo son sobre proyectos de construcción, arquitectura, cronogramas y especificaciones técnicas. ¿Puedo ayudarte con información relacionada a estos temas?"

const systemPrompt = `Eres un asistente experto en documentación técnica de construcción y proyectos de ingeniería. Tu objetivo es proporcionar respuestas completas, detalladas y útiles basadas en los documentos disponibles.

TU MISIÓN:
Ayudar a ingenieros, arquitectos y personal técnico a encontrar información precisa y comprenderla en profundidad. Ofrece respuestas exhaustivas que ahorren tiempo al usuario.

REGLAS FUNDAMENTALES:
1. PROFUNDIDAD: Da respuestas completas y detalladas, no te limites a frases cortas
2. CONTEXTO: Explica el contexto relevante de cada documento que cites
3. SÍNTESIS: Integra información de múltiples documentos cuando sea pertinente
4. PRECISIÓN: Usa SOLO información explícita de los documentos proporcionados
5. HONESTIDAD: Si algo no está en los docs, dilo claramente pero sugiere alternativas
6. ESTRUCTURA: Organiza respuestas largas con secciones para facilitar lectura

ESTILO DE RESPUESTA:
- NARRATIVO e INTEGRADO: Cuenta una historia coherente con los datos
- DETALLADO: Explica conceptos, da contexto, menciona implicaciones
- PROFESIONAL: Usa terminología técnica apropiada
- ÚTIL: Anticipa preguntas de seguimiento y proporciona info adicional relevante

ESTRUCTURA RECOMENDADA:
1. Respuesta Directa: Qué encontraste (2-3 frases)
2. Detalles Principales: Información clave extraída de los docs (varios párrafos)
3. Contexto Adicional: Relaciones, implicaciones, datos complementarios
4. Referencias: Cita las fuentes al final con formato limpio

PARA PREGUNTAS IRRELEVANTES:
Si la pregunta no tiene relación con los documentos, responde:
"No encuentro información sobre [tema] en la documentación técnica disponible. Los documentos que tengo son sobre [listar temas disponibles]. ¿Puedo ayudarte con algún aspecto relacionado a estos proyectos?"

CONSEJOS ADICIONALES:
- Si múltiples docs tienen info complementaria, sintetízalos
- Menciona fechas, números de revisión y categorías cuando sea relevante
- Si hay datos técnicos (medidas, materiales, códigos), inclúyelos
- Explica siglas y términos técnicos si es necesario
- Sugiere documentos relacionados que puedan ser útiles`

// strictSystemPrompt grounds answers in a single just-uploaded document.
const strictSystemPrompt = "Eres un asistente que responde preguntas basándote ÚNICAMENTE en el documento proporcionado. Si la información no está en el documento, di que no la encontraste."

const contextDelimiter = "================================================================================"

// buildContext renders the retrieved documents into the block the model reads.
func buildContext(results []document.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "Sin título"
		}
		snippet := r.Snippet
		if snippet == "" {
			snippet = "Sin contenido"
		}
		parts = append(parts, fmt.Sprintf(
			"📄 Documento %d (Relevancia: %.1f%%)\nTítulo: %s\nNúmero: %s\nCategoría: %s\nContenido:\n%s\n",
			i+1, r.Score*100, title, r.Number, r.Category, snippet))
	}
	return "\n" + contextDelimiter + "\n" + strings.Join(parts, contextDelimiter+"\n")
}

// buildUserPrompt frames the question together with the context block.
func buildUserPrompt(question, context string) string {
	return fmt.Sprintf(`Pregunta del usuario: %s

DOCUMENTOS TÉCNICOS DISPONIBLES:
%s

INSTRUCCIONES:
Analiza cuidadosamente los documentos proporcionados y genera una respuesta COMPLETA y DETALLADA que:
1. Responda directamente a la pregunta
2. Proporcione contexto técnico relevante
3. Integre información de múltiples documentos si es pertinente
4. Incluya datos específicos (números, fechas, especificaciones)
5. Sea útil para un profesional técnico

No te limites a frases cortas. El usuario necesita información exhaustiva y bien explicada.`, question, context)
}

// extractiveAnswer is the model-free fallback: headline the top matches.
func extractiveAnswer(question string, results []document.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontré %d documentos relevantes sobre '%s':\n\n", len(results), question)
	for i, r := range results {
		if i == 3 {
			break
		}
		title := r.Title
		if title == "" {
			title = "Sin título"
		}
		snippet := r.Snippet
		if runes := []rune(snippet); len(runes) > 300 {
			snippet = string(runes[:300])
		}
		fmt.Fprintf(&b, "**%d. %s**\n%s...\n\n", i+1, title, snippet)
	}
	return b.String()
}
