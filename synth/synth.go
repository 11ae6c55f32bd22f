// Package synth generates realistic Spanish document bodies from metadata for
// records whose source file is unavailable, producing ingest-ready records
// with full text.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/construdocs/construdocs/document"
	"github.com/construdocs/construdocs/llm"
	"github.com/construdocs/construdocs/pkg/errors"
	"github.com/construdocs/construdocs/pkg/logging"
)

const systemPrompt = "Eres un experto en documentos técnicos de construcción y arquitectura. Generas contenido realista y profesional para documentos técnicos basándote en metadata."

// generation parameters for synthetic bodies
var genOptions = llm.Options{Temperature: 0.7, MaxTokens: 1500}

// Generator produces synthetic full text for metadata-only records.
type Generator struct {
	client     llm.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxRetries caps rate-limit retries per document.
func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// WithBackoff sets the initial and maximum retry delays.
func WithBackoff(base, max time.Duration) Option {
	return func(g *Generator) {
		if base > 0 {
			g.baseDelay = base
		}
		if max > 0 {
			g.maxDelay = max
		}
	}
}

// withSleep replaces the delay function; tests pin it.
func withSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) { g.sleep = f }
}

// New creates a Generator.
func New(client llm.Client, opts ...Option) *Generator {
	g := &Generator{
		client:     client,
		maxRetries: 6,
		baseDelay:  5 * time.Second,
		maxDelay:   5 * time.Minute,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var log = logging.WithComponent("synth")

// Enrich generates full text for one record and returns an ingest-ready copy
// carrying it. Rate limits are retried with exponential backoff, honoring the
// backend's retry-after hint when present; once retries are exhausted the
// record is returned with metadata-only text rather than dropped.
func (g *Generator) Enrich(ctx context.Context, rec *document.RawRecord) (*document.RawRecord, error) {
	if rec == nil || rec.DocumentID == "" {
		return nil, fmt.Errorf("record has no DocumentId: %w", errors.ErrInvalidInput)
	}

	content, err := g.generate(ctx, rec.Metadata)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("generation exhausted retries, keeping metadata only",
			"document_id", rec.DocumentID, "error", err)
		content = ""
	}
	return enrichedRecord(rec, content)
}

// generate calls the model with backoff on rate limits.
func (g *Generator) generate(ctx context.Context, metadata map[string]any) (string, error) {
	messages := []*llm.Message{
		llm.NewMessage(llm.RoleSystem, systemPrompt),
		llm.NewMessage(llm.RoleUser, buildPrompt(metadata)),
	}

	delay := g.baseDelay
	for attempt := 0; ; attempt++ {
		reply, err := g.client.Generate(ctx, messages, genOptions)
		if err == nil {
			return strings.TrimSpace(reply.Content), nil
		}
		rle, rateLimited := errors.AsRateLimit(err)
		if !rateLimited || attempt >= g.maxRetries {
			return "", err
		}

		wait := delay
		if rle.RetryAfter > wait {
			wait = rle.RetryAfter
		}
		log.Info("rate limited, backing off",
			"wait", wait, "attempt", attempt+1, "max_retries", g.maxRetries)
		if err := g.sleep(ctx, wait); err != nil {
			return "", err
		}
		delay *= 2
		if delay > g.maxDelay {
			delay = g.maxDelay
		}
	}
}

// enrichedRecord rebuilds the record JSON with the synthetic fields set, so
// the ingest path sees the same shape an enriched export would carry.
func enrichedRecord(rec *document.RawRecord, content string) (*document.RawRecord, error) {
	var payload map[string]any
	if len(rec.Raw()) > 0 {
		if err := json.Unmarshal(rec.Raw(), &payload); err != nil {
			return nil, fmt.Errorf("decode record payload: %w", err)
		}
	} else {
		payload = map[string]any{
			"DocumentId": rec.DocumentID,
			"metadata":   rec.Metadata,
		}
	}
	payload["synthetic_content"] = content
	if content != "" {
		payload["full_text"] = "===== CONTENIDO DEL DOCUMENTO =====\n\n" + content
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode enriched record: %w", err)
	}
	var out document.RawRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode enriched record: %w", err)
	}
	return &out, nil
}

// buildPrompt renders the generation instructions for one document's metadata.
func buildPrompt(metadata map[string]any) string {
	get := func(key string) string {
		if v, ok := metadata[key].(string); ok {
			return v
		}
		return ""
	}
	docType := get("DocumentType")
	if docType == "" {
		docType = "Documento"
	}
	title := get("Title")
	if title == "" {
		title = "Sin título"
	}

	return fmt.Sprintf(`Genera el contenido realista de un documento de construcción en español con las siguientes características:

INFORMACIÓN DEL DOCUMENTO:
- Tipo: %s
- Título: %s
- Número: %s
- Categoría: %s
- Estado: %s
- Proyecto: %s
- Disciplina: %s
- Revisión: %s

INSTRUCCIONES ESPECÍFICAS POR TIPO:

Si es "Plano":
- Describe especificaciones técnicas detalladas
- Menciona dimensiones, materiales, normas aplicables
- Incluye referencias a elementos estructurales/arquitectónicos
- Agrega notas técnicas y consideraciones de diseño

Si es "Informe":
- Estructura: Resumen ejecutivo, antecedentes, análisis, conclusiones
- Incluye datos numéricos realistas (porcentajes, fechas, cantidades)
- Menciona hallazgos, recomendaciones, acciones correctivas

Si es "Cronograma":
- Lista actividades con fechas específicas (usa formato DD/MM/AAAA)
- Menciona hitos importantes del proyecto
- Incluye recursos asignados, responsables
- Identifica posibles retrasos o riesgos

Si es "Especificación Técnica":
- Describe materiales, equipos, procedimientos
- Menciona normas técnicas (ASTM, ISO, etc.)
- Incluye requisitos de calidad, tolerancias
- Agrega procedimientos de instalación/ejecución

Si es "Procedimiento":
- Lista pasos numerados detalladamente
- Menciona equipos de seguridad requeridos
- Incluye precauciones y advertencias
- Agrega responsables y verificaciones

FORMATO:
- Genera entre 800-1200 palabras
- Usa formato profesional y técnico
- Incluye párrafos bien estructurados
- Usa terminología técnica apropiada
- NO uses markdown, solo texto plano con saltos de línea

Genera SOLO el contenido del documento, SIN introducción ni explicaciones adicionales.`,
		docType, title, get("DocumentNumber"), get("Category"), get("DocumentStatus"),
		get("SelectList2"), get("SelectList7"), get("Revision"))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
