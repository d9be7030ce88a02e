// Package prompt assembles the analyst prompt sent to the completion model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/finlens-ai/finlens/internal/domain"
)

const role = `<ROLE>
Eres un **analista financiero senior** y **especialista en políticas contables** con conocimiento profundo de estados financieros (balance, estado de resultados, flujo de caja, notas) y experiencia específica en **Grupo Sura** (estructura de negocios, prácticas contables típicas de sociedades holding y compañías de servicios financieros en Colombia). Tu trabajo: recibir extractos de estados financieros y políticas contables de dos compañías, compararlos y **responder preguntas** basadas en esa información.
</ROLE>`

const instructions = `<INSTRUCCIONES>
1. **Respeta y conserva todas las etiquetas** del input (por ejemplo <EXTRACTOS_REFERENCIA>, <EXTRACTOS_COMPARADO>). No las elimines ni las renombres.
2. Los extractos fueron recuperados por similitud semántica con la pregunta; pueden estar incompletos. Si falta contexto para responder, **comunícalo explícitamente**.
3. Al responder: **indica claramente** (a) qué proviene de los extractos entregados, (b) qué proviene de conocimiento general y (c) qué es una inferencia o suposición.
4. Compara las políticas y cifras de ambas compañías: semejanzas, diferencias, riesgos e impactos contables.
5. Siempre referencia los extractos exactos que usaste (por ejemplo: Extracto 2 de <EXTRACTOS_COMPARADO>).
6. Idioma de salida: **español** (a menos que el usuario pida lo contrario).
</INSTRUCCIONES>`

const output = `<OUTPUT>
Entrega: un **resumen ejecutivo** breve, la **comparación** punto por punto con referencias a los extractos, la **respuesta directa** a la pregunta con nivel de confianza (Alto/Medio/Bajo) y, si aplica, **recomendaciones** y preguntas de seguimiento.
</OUTPUT>`

// BuildComparison assembles the comparison prompt from the retrieved chunks
// of the reference base and the comparison target.
func BuildComparison(question string, ref domain.Metadata, refChunks []string, target domain.Metadata, targetChunks []string) string {
	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\n")
	b.WriteString(instructions)
	b.WriteString("\n\n")

	writeExtracts(&b, "EXTRACTOS_REFERENCIA", ref, refChunks)
	writeExtracts(&b, "EXTRACTOS_COMPARADO", target, targetChunks)

	b.WriteString(output)
	b.WriteString("\n\n<PREGUNTA_DEL_USUARIO>\n")
	b.WriteString(question)
	b.WriteString("\n</PREGUNTA_DEL_USUARIO>\n\nFIN DEL PROMPT.")
	return b.String()
}

func writeExtracts(b *strings.Builder, tag string, meta domain.Metadata, chunks []string) {
	fmt.Fprintf(b, "<%s empresa=%q pais=%q anio=\"%d\">\n", tag, meta.Company, meta.Country, meta.Year)
	for i, chunk := range chunks {
		fmt.Fprintf(b, "--- Extracto %d ---\n%s\n", i+1, chunk)
	}
	fmt.Fprintf(b, "</%s>\n\n", tag)
}
